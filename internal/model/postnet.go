package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/ops"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

// postNet residually refines the linear mel projection: five wide
// conv+batchnorm+tanh stages followed by a final conv back down to the mel
// bin count (batchnorm, no activation). Callers add its output to the linear
// prediction; it is never used standalone.
type postNet struct {
	convs [6]*conv1d
	bns   [6]*batchNorm
}

func newPostNet(rng *rand.Rand, cfg Config) *postNet {
	p := &postNet{}

	p.convs[0] = newConv1d(rng, cfg.MelFreq, cfg.PostnetEmbeddingSize, cfg.PostnetKernelSize)
	for i := 1; i < 5; i++ {
		p.convs[i] = newConv1d(rng, cfg.PostnetEmbeddingSize, cfg.PostnetEmbeddingSize, cfg.PostnetKernelSize)
	}

	p.convs[5] = newConv1d(rng, cfg.PostnetEmbeddingSize, cfg.MelFreq, cfg.PostnetKernelSize)

	for i := range p.bns {
		channels := cfg.PostnetEmbeddingSize
		if i == 5 {
			channels = cfg.MelFreq
		}

		p.bns[i] = newBatchNorm(channels)
	}

	return p
}

func loadPostNet(vb *VarBuilder, cfg Config) (*postNet, error) {
	sub := vb.Path("postnet")
	p := &postNet{}

	for i := range p.convs {
		in := cfg.PostnetEmbeddingSize
		if i == 0 {
			in = cfg.MelFreq
		}

		out := cfg.PostnetEmbeddingSize
		if i == 5 {
			out = cfg.MelFreq
		}

		conv, err := loadConv1d(sub, fmt.Sprintf("conv_%d", i+1), in, out, cfg.PostnetKernelSize)
		if err != nil {
			return nil, err
		}

		bn, err := loadBatchNorm(sub, fmt.Sprintf("bn_%d", i+1), out)
		if err != nil {
			return nil, err
		}

		p.convs[i] = conv
		p.bns[i] = bn
	}

	return p, nil
}

// forward refines mel [N, L, F] and returns the residual to add, same shape.
func (p *postNet) forward(mel *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	x, err := mel.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	for i := range p.convs {
		x, err = p.convs[i].forward(x)
		if err != nil {
			return nil, err
		}

		x, err = p.bns[i].forward(x, training)
		if err != nil {
			return nil, err
		}

		if i < 5 {
			tanh(x)
		}

		if training {
			x, err = ops.Dropout(x, prenetDropout, rng)
			if err != nil {
				return nil, err
			}
		}
	}

	return x.Transpose(1, 2)
}

func (p *postNet) export(dst *[]safetensors.Tensor) {
	for i := range p.convs {
		p.convs[i].export(fmt.Sprintf("postnet.conv_%d", i+1), dst)
		p.bns[i].export(fmt.Sprintf("postnet.bn_%d", i+1), dst)
	}
}

func tanh(x *tensor.Tensor) {
	data := x.RawData()
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
}
