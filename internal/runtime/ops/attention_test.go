package ops

import (
	"math"
	"strings"
	"testing"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

func mustTensorT(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	out, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor new: %v", err)
	}

	return out
}

func TestAttentionUnmasked(t *testing.T) {
	q := mustTensorT(t, []float32{1, 0}, []int64{1, 1, 2})
	k := mustTensorT(t, []float32{100, 0, 0, 100}, []int64{1, 2, 2})
	v := mustTensorT(t, []float32{1, 5}, []int64{1, 2, 1})

	out, err := Attention(q, k, v)
	if err != nil {
		t.Fatalf("attention: %v", err)
	}

	got := out.Data()
	if got[0] <= 1 || got[0] >= 5 {
		t.Fatalf("attention output = %f, want weighted toward 1", got[0])
	}
}

func TestAttentionCausalMasked(t *testing.T) {
	q := mustTensorT(t, []float32{1, 1}, []int64{1, 2, 1})
	k := mustTensorT(t, []float32{0, 10}, []int64{1, 2, 1})
	v := mustTensorT(t, []float32{1, 5}, []int64{1, 2, 1})

	causal, err := CausalMask(2, 2)
	if err != nil {
		t.Fatalf("causal mask: %v", err)
	}

	out, err := Attention(q, k, v, causal)
	if err != nil {
		t.Fatalf("attention: %v", err)
	}

	got := out.Data()
	if math.Abs(float64(got[0]-1)) > 1e-4 {
		t.Fatalf("query0 output = %f, want near 1.0 (future key masked)", got[0])
	}

	if got[1] < 4.0 {
		t.Fatalf("query1 output = %f, want > 4.0", got[1])
	}
}

func TestAttentionPaddingMasked(t *testing.T) {
	// Two keys, second beyond the true length. The padded key holds an
	// extreme value that would dominate if the mask leaked.
	q := mustTensorT(t, []float32{1}, []int64{1, 1, 1})
	k := mustTensorT(t, []float32{0, 100}, []int64{1, 2, 1})
	v := mustTensorT(t, []float32{2, 999}, []int64{1, 2, 1})

	pad, err := PaddingMask([]int64{1}, 2)
	if err != nil {
		t.Fatalf("padding mask: %v", err)
	}

	out, err := Attention(q, k, v, pad)
	if err != nil {
		t.Fatalf("attention: %v", err)
	}

	got := out.Data()
	if math.Abs(float64(got[0]-2)) > 1e-4 {
		t.Fatalf("attention output = %f, want 2 (padded key ignored)", got[0])
	}
}

func TestAttentionCombinedMasks(t *testing.T) {
	q := mustTensorT(t, make([]float32, 3), []int64{1, 3, 1})
	k := mustTensorT(t, []float32{0, 0, 0}, []int64{1, 3, 1})
	v := mustTensorT(t, []float32{1, 2, 4}, []int64{1, 3, 1})

	causal, err := CausalMask(3, 3)
	if err != nil {
		t.Fatalf("causal mask: %v", err)
	}

	pad, err := PaddingMask([]int64{2}, 3)
	if err != nil {
		t.Fatalf("padding mask: %v", err)
	}

	out, err := Attention(q, k, v, causal, pad)
	if err != nil {
		t.Fatalf("attention: %v", err)
	}

	got := out.Data()
	if math.Abs(float64(got[0]-1)) > 1e-4 {
		t.Fatalf("query0 = %f, want 1", got[0])
	}

	if math.Abs(float64(got[1]-1.5)) > 1e-4 {
		t.Fatalf("query1 = %f, want 1.5", got[1])
	}

	// Query 2 is itself a padded step: causal opens keys 0..2, padding closes
	// key 2, so it averages the two real keys.
	if math.Abs(float64(got[2]-1.5)) > 1e-4 {
		t.Fatalf("query2 = %f, want 1.5", got[2])
	}
}

func TestAttentionErrors(t *testing.T) {
	_, err := Attention(nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "non-nil") {
		t.Fatalf("Attention(nil) err = %v, want nil input error", err)
	}

	q := mustTensorT(t, make([]float32, 6), []int64{1, 2, 3})
	kBadD := mustTensorT(t, make([]float32, 8), []int64{1, 2, 4})
	v := mustTensorT(t, make([]float32, 4), []int64{1, 2, 2})

	_, err = Attention(q, kBadD, v)
	if err == nil || !strings.Contains(err.Error(), "depth mismatch") {
		t.Fatalf("Attention(depth mismatch) err = %v, want depth mismatch error", err)
	}
}
