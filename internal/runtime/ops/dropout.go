package ops

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p) (inverted dropout). The caller owns the RNG, which keeps generation
// reproducible under a fixed seed.
func Dropout(x *tensor.Tensor, p float32, rng *rand.Rand) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: dropout on nil tensor")
	}

	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("ops: dropout probability must be in [0, 1), got %v", p)
	}

	if p == 0 {
		return x.Clone(), nil
	}

	if rng == nil {
		return nil, errors.New("ops: dropout requires a RNG")
	}

	out := x.Clone()
	data := out.RawData()
	scale := 1 / (1 - p)

	for i := range data {
		if rng.Float32() < p {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}

	return out, nil
}
