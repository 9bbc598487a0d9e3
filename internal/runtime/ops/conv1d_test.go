package ops

import (
	"strings"
	"testing"
)

func TestConv1DIdentityKernel(t *testing.T) {
	// Kernel [1,1,3] = [0,1,0] with same-padding reproduces the input.
	input := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	kernel := mustTensorT(t, []float32{0, 1, 0}, []int64{1, 1, 3})

	out, err := Conv1D(input, kernel, nil, 1, 1, 1)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	shape := out.Shape()
	if shape[0] != 1 || shape[1] != 1 || shape[2] != 4 {
		t.Fatalf("conv1d shape = %v, want [1 1 4]", shape)
	}

	got := out.Data()
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("conv1d data = %v, want %v", got, want)
		}
	}
}

func TestConv1DSumKernelWithBias(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3}, []int64{1, 1, 3})
	kernel := mustTensorT(t, []float32{1, 1, 1}, []int64{1, 1, 3})
	bias := mustTensorT(t, []float32{10}, []int64{1})

	out, err := Conv1D(input, kernel, bias, 1, 1, 1)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	got := out.Data()
	want := []float32{13, 16, 15} // zero-padded ends
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("conv1d data = %v, want %v", got, want)
		}
	}
}

func TestConv1DMultiChannel(t *testing.T) {
	// Two input channels summed into one output channel, kernel size 1.
	input := mustTensorT(t, []float32{
		1, 2,
		10, 20,
	}, []int64{1, 2, 2})
	kernel := mustTensorT(t, []float32{1, 1}, []int64{1, 2, 1})

	out, err := Conv1D(input, kernel, nil, 1, 0, 1)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	got := out.Data()
	if got[0] != 11 || got[1] != 22 {
		t.Fatalf("conv1d data = %v, want [11 22]", got)
	}
}

func TestConv1DErrors(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2}, []int64{1, 1, 2})
	kernelBad := mustTensorT(t, []float32{1, 1}, []int64{1, 2, 1})

	_, err := Conv1D(input, kernelBad, nil, 1, 0, 1)
	if err == nil || !strings.Contains(err.Error(), "in_channels mismatch") {
		t.Fatalf("conv1d channel mismatch err = %v", err)
	}

	kernel := mustTensorT(t, []float32{1}, []int64{1, 1, 1})

	_, err = Conv1D(input, kernel, nil, 0, 0, 1)
	if err == nil || !strings.Contains(err.Error(), "stride/dilation") {
		t.Fatalf("conv1d bad stride err = %v", err)
	}
}
