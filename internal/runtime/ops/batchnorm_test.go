package ops

import (
	"math"
	"testing"
)

func TestBatchStats1D(t *testing.T) {
	x := mustTensorT(t, []float32{
		1, 3,
		10, 30,
	}, []int64{1, 2, 2})

	mean, variance, err := BatchStats1D(x)
	if err != nil {
		t.Fatalf("batch stats: %v", err)
	}

	if mean[0] != 2 || mean[1] != 20 {
		t.Fatalf("mean = %v, want [2 20]", mean)
	}

	if variance[0] != 1 || variance[1] != 100 {
		t.Fatalf("variance = %v, want [1 100]", variance)
	}
}

func TestBatchNorm1DNormalizes(t *testing.T) {
	x := mustTensorT(t, []float32{1, 3}, []int64{1, 1, 2})

	mean, variance, err := BatchStats1D(x)
	if err != nil {
		t.Fatalf("batch stats: %v", err)
	}

	out, err := BatchNorm1D(x, mean, variance, nil, nil, 1e-5)
	if err != nil {
		t.Fatalf("batchnorm: %v", err)
	}

	got := out.Data()
	if math.Abs(float64(got[0]+got[1])) > 1e-4 {
		t.Fatalf("normalized output not centered: %v", got)
	}

	if math.Abs(float64(got[1]-1)) > 1e-2 {
		t.Fatalf("normalized output not unit scale: %v", got)
	}
}

func TestBatchNorm1DAffine(t *testing.T) {
	x := mustTensorT(t, []float32{0, 0}, []int64{1, 1, 2})
	weight := mustTensorT(t, []float32{2}, []int64{1})
	bias := mustTensorT(t, []float32{7}, []int64{1})

	out, err := BatchNorm1D(x, []float64{0}, []float64{1}, weight, bias, 1e-5)
	if err != nil {
		t.Fatalf("batchnorm: %v", err)
	}

	got := out.Data()
	if got[0] != 7 || got[1] != 7 {
		t.Fatalf("affine output = %v, want [7 7]", got)
	}
}

func TestBatchNorm1DStatsMismatch(t *testing.T) {
	x := mustTensorT(t, []float32{0, 0}, []int64{1, 1, 2})

	if _, err := BatchNorm1D(x, []float64{0, 0}, []float64{1, 1}, nil, nil, 1e-5); err == nil {
		t.Fatal("stats length mismatch accepted")
	}
}
