package model

import (
	"fmt"
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/ops"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

const prenetDropout = 0.5

// encoderPreNet turns token ids into per-position encoder features: embedding
// lookup, linear projection, three conv+batchnorm+ReLU stages over the time
// axis mixing local context, then a projection down to the model dimension.
type encoderPreNet struct {
	embedding *embedding
	linear1   *linear
	linear2   *linear
	convs     [3]*conv1d
	bns       [3]*batchNorm
}

func newEncoderPreNet(rng *rand.Rand, cfg Config) *encoderPreNet {
	p := &encoderPreNet{
		embedding: newEmbedding(rng, cfg.TextNumEmbeddings, cfg.EncoderEmbeddingSize),
		linear1:   newLinear(rng, cfg.EncoderEmbeddingSize, cfg.EncoderEmbeddingSize),
		linear2:   newLinear(rng, cfg.EncoderEmbeddingSize, cfg.EmbeddingSize),
	}

	for i := range p.convs {
		p.convs[i] = newConv1d(rng, cfg.EncoderEmbeddingSize, cfg.EncoderEmbeddingSize, cfg.EncoderKernelSize)
		p.bns[i] = newBatchNorm(cfg.EncoderEmbeddingSize)
	}

	return p
}

func loadEncoderPreNet(vb *VarBuilder, cfg Config) (*encoderPreNet, error) {
	sub := vb.Path("encoder_prenet")

	emb, err := loadEmbedding(sub, "embedding", cfg.TextNumEmbeddings, cfg.EncoderEmbeddingSize)
	if err != nil {
		return nil, err
	}

	linear1, err := loadLinear(sub, "linear_1", cfg.EncoderEmbeddingSize, cfg.EncoderEmbeddingSize)
	if err != nil {
		return nil, err
	}

	linear2, err := loadLinear(sub, "linear_2", cfg.EncoderEmbeddingSize, cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	p := &encoderPreNet{embedding: emb, linear1: linear1, linear2: linear2}

	for i := range p.convs {
		conv, err := loadConv1d(sub, fmt.Sprintf("conv_%d", i+1), cfg.EncoderEmbeddingSize, cfg.EncoderEmbeddingSize, cfg.EncoderKernelSize)
		if err != nil {
			return nil, err
		}

		bn, err := loadBatchNorm(sub, fmt.Sprintf("bn_%d", i+1), cfg.EncoderEmbeddingSize)
		if err != nil {
			return nil, err
		}

		p.convs[i] = conv
		p.bns[i] = bn
	}

	return p, nil
}

func (p *encoderPreNet) forward(text [][]int64, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	x, err := p.embedding.lookup(text)
	if err != nil {
		return nil, err
	}

	x, err = p.linear1.forward(x)
	if err != nil {
		return nil, err
	}

	// Convolutions run channels-first: [N, S, C] -> [N, C, S].
	x, err = x.Transpose(1, 2)
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

		relu(x)

		if training {
			x, err = ops.Dropout(x, prenetDropout, rng)
			if err != nil {
				return nil, err
			}
		}
	}

	x, err = x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	return p.linear2.forward(x)
}

func (p *encoderPreNet) export(dst *[]safetensors.Tensor) {
	p.embedding.export("encoder_prenet.embedding", dst)
	p.linear1.export("encoder_prenet.linear_1", dst)
	p.linear2.export("encoder_prenet.linear_2", dst)

	for i := range p.convs {
		p.convs[i].export(fmt.Sprintf("encoder_prenet.conv_%d", i+1), dst)
		p.bns[i].export(fmt.Sprintf("encoder_prenet.bn_%d", i+1), dst)
	}
}

// decoderPreNet projects mel frames up to the model dimension through two
// linear+ReLU stages. Its dropout is active even at inference: the stochastic
// decoder input is a deliberate regularizer carried over into generation, and
// alwaysDropout only exists so callers can opt out of that behavior.
type decoderPreNet struct {
	linear1       *linear
	linear2       *linear
	alwaysDropout bool
}

func newDecoderPreNet(rng *rand.Rand, cfg Config) *decoderPreNet {
	return &decoderPreNet{
		linear1:       newLinear(rng, cfg.MelFreq, cfg.EmbeddingSize),
		linear2:       newLinear(rng, cfg.EmbeddingSize, cfg.EmbeddingSize),
		alwaysDropout: cfg.DecoderPrenetAlwaysDropout,
	}
}

func loadDecoderPreNet(vb *VarBuilder, cfg Config) (*decoderPreNet, error) {
	sub := vb.Path("decoder_prenet")

	linear1, err := loadLinear(sub, "linear_1", cfg.MelFreq, cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	linear2, err := loadLinear(sub, "linear_2", cfg.EmbeddingSize, cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	return &decoderPreNet{
		linear1:       linear1,
		linear2:       linear2,
		alwaysDropout: cfg.DecoderPrenetAlwaysDropout,
	}, nil
}

func (p *decoderPreNet) forward(mel *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	dropoutActive := training || p.alwaysDropout

	x, err := p.linear1.forward(mel)
	if err != nil {
		return nil, err
	}

	relu(x)

	if dropoutActive {
		x, err = ops.Dropout(x, prenetDropout, rng)
		if err != nil {
			return nil, err
		}
	}

	x, err = p.linear2.forward(x)
	if err != nil {
		return nil, err
	}

	relu(x)

	if dropoutActive {
		x, err = ops.Dropout(x, prenetDropout, rng)
		if err != nil {
			return nil, err
		}
	}

	return x, nil
}

func (p *decoderPreNet) export(dst *[]safetensors.Tensor) {
	p.linear1.export("decoder_prenet.linear_1", dst)
	p.linear2.export("decoder_prenet.linear_2", dst)
}

func relu(x *tensor.Tensor) {
	data := x.RawData()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}
