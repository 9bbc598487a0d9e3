package model

import (
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/ops"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

const blockDropout = 0.1

// encoderBlock is a pre-norm residual transformer block:
// x = x + SelfAttn(Norm(x)); x = x + FFN(Norm(x)).
type encoderBlock struct {
	norm1   *layerNorm
	norm2   *layerNorm
	attn    *multiHeadAttention
	linear1 *linear
	linear2 *linear
}

func newEncoderBlock(rng *rand.Rand, cfg Config) (*encoderBlock, error) {
	attn, err := newMultiHeadAttention(rng, cfg.EmbeddingSize, cfg.Heads, blockDropout)
	if err != nil {
		return nil, err
	}

	return &encoderBlock{
		norm1:   newLayerNorm(cfg.EmbeddingSize),
		norm2:   newLayerNorm(cfg.EmbeddingSize),
		attn:    attn,
		linear1: newLinear(rng, cfg.EmbeddingSize, cfg.DimFeedforward),
		linear2: newLinear(rng, cfg.DimFeedforward, cfg.EmbeddingSize),
	}, nil
}

func loadEncoderBlock(vb *VarBuilder, name string, cfg Config) (*encoderBlock, error) {
	sub := vb.Path(name)

	norm1, err := loadLayerNorm(sub, "norm_1", cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	norm2, err := loadLayerNorm(sub, "norm_2", cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	attn, err := loadMultiHeadAttention(sub, "attn", cfg.EmbeddingSize, cfg.Heads, blockDropout)
	if err != nil {
		return nil, err
	}

	linear1, err := loadLinear(sub, "linear_1", cfg.EmbeddingSize, cfg.DimFeedforward)
	if err != nil {
		return nil, err
	}

	linear2, err := loadLinear(sub, "linear_2", cfg.DimFeedforward, cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	return &encoderBlock{norm1: norm1, norm2: norm2, attn: attn, linear1: linear1, linear2: linear2}, nil
}

func (b *encoderBlock) forward(x *tensor.Tensor, padMask *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	normed, err := b.norm1.forward(x)
	if err != nil {
		return nil, err
	}

	attnOut, err := b.attn.forward(normed, normed, normed, training, rng, padMask)
	if err != nil {
		return nil, err
	}

	attnOut, err = dropoutIf(attnOut, blockDropout, training, rng)
	if err != nil {
		return nil, err
	}

	x, err = tensor.BroadcastAdd(x, attnOut)
	if err != nil {
		return nil, err
	}

	normed, err = b.norm2.forward(x)
	if err != nil {
		return nil, err
	}

	ffOut, err := b.feedForward(normed, training, rng)
	if err != nil {
		return nil, err
	}

	return tensor.BroadcastAdd(x, ffOut)
}

func (b *encoderBlock) feedForward(x *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	out, err := b.linear1.forward(x)
	if err != nil {
		return nil, err
	}

	relu(out)

	out, err = dropoutIf(out, blockDropout, training, rng)
	if err != nil {
		return nil, err
	}

	out, err = b.linear2.forward(out)
	if err != nil {
		return nil, err
	}

	return dropoutIf(out, blockDropout, training, rng)
}

func (b *encoderBlock) export(name string, dst *[]safetensors.Tensor) {
	b.norm1.export(name+".norm_1", dst)
	b.norm2.export(name+".norm_2", dst)
	b.attn.export(name+".attn", dst)
	b.linear1.export(name+".linear_1", dst)
	b.linear2.export(name+".linear_2", dst)
}

// decoderBlock is a post-norm residual transformer block:
// x = Norm(x + SelfAttn(x)); x = Norm(x + CrossAttn(x, memory));
// x = Norm(x + FFN(x)). Self-attention is causal+padding masked,
// cross-attention reads the encoder memory under the alignment and source
// padding masks.
type decoderBlock struct {
	norm1     *layerNorm
	norm2     *layerNorm
	norm3     *layerNorm
	selfAttn  *multiHeadAttention
	crossAttn *multiHeadAttention
	linear1   *linear
	linear2   *linear
}

func newDecoderBlock(rng *rand.Rand, cfg Config) (*decoderBlock, error) {
	selfAttn, err := newMultiHeadAttention(rng, cfg.EmbeddingSize, cfg.Heads, blockDropout)
	if err != nil {
		return nil, err
	}

	crossAttn, err := newMultiHeadAttention(rng, cfg.EmbeddingSize, cfg.Heads, blockDropout)
	if err != nil {
		return nil, err
	}

	return &decoderBlock{
		norm1:     newLayerNorm(cfg.EmbeddingSize),
		norm2:     newLayerNorm(cfg.EmbeddingSize),
		norm3:     newLayerNorm(cfg.EmbeddingSize),
		selfAttn:  selfAttn,
		crossAttn: crossAttn,
		linear1:   newLinear(rng, cfg.EmbeddingSize, cfg.DimFeedforward),
		linear2:   newLinear(rng, cfg.DimFeedforward, cfg.EmbeddingSize),
	}, nil
}

func loadDecoderBlock(vb *VarBuilder, name string, cfg Config) (*decoderBlock, error) {
	sub := vb.Path(name)

	norm1, err := loadLayerNorm(sub, "norm_1", cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	norm2, err := loadLayerNorm(sub, "norm_2", cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	norm3, err := loadLayerNorm(sub, "norm_3", cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	selfAttn, err := loadMultiHeadAttention(sub, "self_attn", cfg.EmbeddingSize, cfg.Heads, blockDropout)
	if err != nil {
		return nil, err
	}

	crossAttn, err := loadMultiHeadAttention(sub, "attn", cfg.EmbeddingSize, cfg.Heads, blockDropout)
	if err != nil {
		return nil, err
	}

	linear1, err := loadLinear(sub, "linear_1", cfg.EmbeddingSize, cfg.DimFeedforward)
	if err != nil {
		return nil, err
	}

	linear2, err := loadLinear(sub, "linear_2", cfg.DimFeedforward, cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	return &decoderBlock{
		norm1:     norm1,
		norm2:     norm2,
		norm3:     norm3,
		selfAttn:  selfAttn,
		crossAttn: crossAttn,
		linear1:   linear1,
		linear2:   linear2,
	}, nil
}

func (b *decoderBlock) forward(
	x, memory *tensor.Tensor,
	causalMask, tgtPadMask, memMask, srcPadMask *tensor.Tensor,
	training bool,
	rng *rand.Rand,
) (*tensor.Tensor, error) {
	attnOut, err := b.selfAttn.forward(x, x, x, training, rng, causalMask, tgtPadMask)
	if err != nil {
		return nil, err
	}

	attnOut, err = dropoutIf(attnOut, blockDropout, training, rng)
	if err != nil {
		return nil, err
	}

	x, err = residualNorm(b.norm1, x, attnOut)
	if err != nil {
		return nil, err
	}

	attnOut, err = b.crossAttn.forward(x, memory, memory, training, rng, memMask, srcPadMask)
	if err != nil {
		return nil, err
	}

	attnOut, err = dropoutIf(attnOut, blockDropout, training, rng)
	if err != nil {
		return nil, err
	}

	x, err = residualNorm(b.norm2, x, attnOut)
	if err != nil {
		return nil, err
	}

	ffOut, err := b.feedForward(x, training, rng)
	if err != nil {
		return nil, err
	}

	return residualNorm(b.norm3, x, ffOut)
}

func (b *decoderBlock) feedForward(x *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	out, err := b.linear1.forward(x)
	if err != nil {
		return nil, err
	}

	relu(out)

	out, err = dropoutIf(out, blockDropout, training, rng)
	if err != nil {
		return nil, err
	}

	out, err = b.linear2.forward(out)
	if err != nil {
		return nil, err
	}

	return dropoutIf(out, blockDropout, training, rng)
}

func (b *decoderBlock) export(name string, dst *[]safetensors.Tensor) {
	b.norm1.export(name+".norm_1", dst)
	b.norm2.export(name+".norm_2", dst)
	b.norm3.export(name+".norm_3", dst)
	b.selfAttn.export(name+".self_attn", dst)
	b.crossAttn.export(name+".attn", dst)
	b.linear1.export(name+".linear_1", dst)
	b.linear2.export(name+".linear_2", dst)
}

func residualNorm(norm *layerNorm, x, delta *tensor.Tensor) (*tensor.Tensor, error) {
	sum, err := tensor.BroadcastAdd(x, delta)
	if err != nil {
		return nil, err
	}

	return norm.forward(sum)
}

func dropoutIf(x *tensor.Tensor, p float32, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if !training || p == 0 {
		return x, nil
	}

	return ops.Dropout(x, p, rng)
}
