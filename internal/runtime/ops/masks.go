package ops

import (
	"fmt"
	"math"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

// Masks are additive: 0 means attend, -Inf means forbid. They are added to
// raw attention scores before softmax, so padding and causal constraints
// compose without interacting.

// PaddingMask builds an additive mask of shape [N, maxLen] from true sequence
// lengths. Positions at or beyond a row's length are set to -Inf.
func PaddingMask(lengths []int64, maxLen int64) (*tensor.Tensor, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("ops: padding mask requires at least one length")
	}

	if maxLen <= 0 {
		return nil, fmt.Errorf("ops: padding mask requires maxLen > 0, got %d", maxLen)
	}

	for i, l := range lengths {
		if l < 1 || l > maxLen {
			return nil, fmt.Errorf("ops: padding mask length %d (%d) out of range [1, %d]", i, l, maxLen)
		}
	}

	out, err := tensor.Zeros([]int64{int64(len(lengths)), maxLen})
	if err != nil {
		return nil, err
	}

	data := out.RawData()
	negInf := float32(math.Inf(-1))

	for n, l := range lengths {
		row := int64(n) * maxLen
		for j := l; j < maxLen; j++ {
			data[row+j] = negInf
		}
	}

	return out, nil
}

// CausalMask builds an additive mask of shape [queries, keys] where entry
// (i, j) is -Inf for j > i. For queries == keys this is the standard square
// causal mask. The rectangular form doubles as the decoder-to-memory mask:
// decoder step i may only read the first i+1 encoder positions, a monotonic
// alignment prior rather than a requirement of attention itself.
func CausalMask(queries, keys int64) (*tensor.Tensor, error) {
	if queries <= 0 || keys <= 0 {
		return nil, fmt.Errorf("ops: causal mask requires positive dims, got %d and %d", queries, keys)
	}

	out, err := tensor.Zeros([]int64{queries, keys})
	if err != nil {
		return nil, err
	}

	data := out.RawData()
	negInf := float32(math.Inf(-1))

	for i := range queries {
		row := i * keys
		for j := i + 1; j < keys; j++ {
			data[row+j] = negInf
		}
	}

	return out, nil
}
