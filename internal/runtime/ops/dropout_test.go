package ops

import (
	"math"
	"math/rand"
	"testing"
)

func TestDropoutZeroProbability(t *testing.T) {
	x := mustTensorT(t, []float32{1, 2, 3}, []int64{3})

	out, err := Dropout(x, 0, nil)
	if err != nil {
		t.Fatalf("dropout: %v", err)
	}

	got := out.Data()
	for i, v := range x.Data() {
		if got[i] != v {
			t.Fatalf("p=0 dropout changed data: %v", got)
		}
	}
}

func TestDropoutScalesSurvivors(t *testing.T) {
	const n = 10000

	data := make([]float32, n)
	for i := range data {
		data[i] = 1
	}

	x := mustTensorT(t, data, []int64{n})
	rng := rand.New(rand.NewSource(1))

	out, err := Dropout(x, 0.5, rng)
	if err != nil {
		t.Fatalf("dropout: %v", err)
	}

	var zeros int
	var sum float64

	for _, v := range out.Data() {
		if v == 0 {
			zeros++
		} else if v != 2 {
			t.Fatalf("survivor value = %v, want 2 (1/(1-p) scaling)", v)
		}

		sum += float64(v)
	}

	if math.Abs(float64(zeros)/n-0.5) > 0.05 {
		t.Fatalf("zeroed fraction = %f, want ~0.5", float64(zeros)/n)
	}

	if math.Abs(sum/n-1) > 0.1 {
		t.Fatalf("mean after dropout = %f, want ~1 (unbiased)", sum/n)
	}
}

func TestDropoutDeterministicUnderSeed(t *testing.T) {
	x := mustTensorT(t, []float32{1, 1, 1, 1, 1, 1, 1, 1}, []int64{8})

	a, err := Dropout(x, 0.5, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("dropout: %v", err)
	}

	b, err := Dropout(x, 0.5, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("dropout: %v", err)
	}

	ad, bd := a.Data(), b.Data()
	for i := range ad {
		if ad[i] != bd[i] {
			t.Fatalf("same seed produced different masks: %v vs %v", ad, bd)
		}
	}
}

func TestDropoutErrors(t *testing.T) {
	x := mustTensorT(t, []float32{1}, []int64{1})

	if _, err := Dropout(x, 1, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("p=1 accepted")
	}

	if _, err := Dropout(x, 0.5, nil); err == nil {
		t.Fatal("missing RNG accepted")
	}

	if _, err := Dropout(nil, 0.5, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("nil tensor accepted")
	}
}
