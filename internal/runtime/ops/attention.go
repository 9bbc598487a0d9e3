package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

// Attention computes scaled dot-product attention with additive masks.
// q shape: [..., tq, d], k shape: [..., tk, d], v shape: [..., tk, dv]
// output: [..., tq, dv]
//
// Each mask is added to the scaled scores and must broadcast against the
// score shape [..., tq, tk]. Masked positions carry -Inf and receive zero
// attention weight after softmax.
func Attention(q, k, v *tensor.Tensor, masks ...*tensor.Tensor) (*tensor.Tensor, error) {
	if q == nil || k == nil || v == nil {
		return nil, errors.New("ops: attention requires non-nil q/k/v")
	}

	qShape := q.Shape()
	kShape := k.Shape()

	vShape := v.Shape()
	if len(qShape) < 2 || len(kShape) < 2 || len(vShape) < 2 {
		return nil, errors.New("ops: attention requires rank >= 2 inputs")
	}

	d := qShape[len(qShape)-1]
	if d != kShape[len(kShape)-1] {
		return nil, fmt.Errorf("ops: attention q/k depth mismatch %d vs %d", d, kShape[len(kShape)-1])
	}

	if kShape[len(kShape)-2] != vShape[len(vShape)-2] {
		return nil, fmt.Errorf("ops: attention key/value sequence mismatch %d vs %d", kShape[len(kShape)-2], vShape[len(vShape)-2])
	}

	kT, err := k.Transpose(-1, -2)
	if err != nil {
		return nil, fmt.Errorf("ops: attention transpose k: %w", err)
	}

	scores, err := tensor.MatMul(q, kT)
	if err != nil {
		return nil, fmt.Errorf("ops: attention q*k^T: %w", err)
	}

	scale := float32(1.0 / math.Sqrt(float64(d)))
	for i, v := range scores.RawData() {
		scores.RawData()[i] = v * scale
	}

	for i, mask := range masks {
		if mask == nil {
			continue
		}

		scores, err = tensor.BroadcastAdd(scores, mask)
		if err != nil {
			return nil, fmt.Errorf("ops: attention mask %d: %w", i, err)
		}
	}

	probs, err := tensor.Softmax(scores, -1)
	if err != nil {
		return nil, fmt.Errorf("ops: attention softmax: %w", err)
	}

	out, err := tensor.MatMul(probs, v)
	if err != nil {
		return nil, fmt.Errorf("ops: attention probs*v: %w", err)
	}

	return out, nil
}
