package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

// BatchStats1D computes per-channel mean and biased variance over the batch
// and time dimensions of a [batch, channels, length] tensor.
func BatchStats1D(x *tensor.Tensor) (mean, variance []float64, err error) {
	if x == nil {
		return nil, nil, errors.New("ops: batch stats on nil tensor")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, nil, fmt.Errorf("ops: batch stats expects rank 3, got %v", shape)
	}

	batch, channels, length := shape[0], shape[1], shape[2]
	count := float64(batch * length)
	if count == 0 {
		return nil, nil, errors.New("ops: batch stats requires non-empty input")
	}

	mean = make([]float64, channels)
	variance = make([]float64, channels)
	data := x.RawData()

	for b := range batch {
		for c := range channels {
			base := (b*channels + c) * length
			for i := range length {
				mean[c] += float64(data[base+i])
			}
		}
	}

	for c := range mean {
		mean[c] /= count
	}

	for b := range batch {
		for c := range channels {
			base := (b*channels + c) * length
			for i := range length {
				delta := float64(data[base+i]) - mean[c]
				variance[c] += delta * delta
			}
		}
	}

	for c := range variance {
		variance[c] /= count
	}

	return mean, variance, nil
}

// BatchNorm1D normalizes a [batch, channels, length] tensor per channel with
// the supplied statistics and applies the affine weight/bias.
func BatchNorm1D(x *tensor.Tensor, mean, variance []float64, weight, bias *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: batchnorm on nil tensor")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: batchnorm expects rank 3, got %v", shape)
	}

	batch, channels, length := shape[0], shape[1], shape[2]
	if int64(len(mean)) != channels || int64(len(variance)) != channels {
		return nil, fmt.Errorf("ops: batchnorm stats length %d/%d does not match channels %d", len(mean), len(variance), channels)
	}

	var weightData, biasData []float32

	if weight != nil {
		wShape := weight.Shape()
		if len(wShape) != 1 || wShape[0] != channels {
			return nil, fmt.Errorf("ops: batchnorm weight shape %v does not match channels %d", wShape, channels)
		}

		weightData = weight.RawData()
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != channels {
			return nil, fmt.Errorf("ops: batchnorm bias shape %v does not match channels %d", bShape, channels)
		}

		biasData = bias.RawData()
	}

	out := x.Clone()
	data := out.RawData()

	for c := range channels {
		invStd := float32(1.0 / math.Sqrt(variance[c]+float64(eps)))
		m := float32(mean[c])

		scale := invStd
		if weightData != nil {
			scale *= weightData[c]
		}

		shift := float32(0)
		if biasData != nil {
			shift = biasData[c]
		}

		for b := range batch {
			base := (b*channels + c) * length
			for i := range length {
				data[base+i] = (data[base+i]-m)*scale + shift
			}
		}
	}

	return out, nil
}
