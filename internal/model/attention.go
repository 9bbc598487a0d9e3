package model

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/ops"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

// multiHeadAttention projects query/key/value through per-stream linears,
// splits into heads, runs masked scaled dot-product attention, and merges
// heads through the output projection. Separate q/k/v projections keep
// cross-attention (query dim from the decoder, key/value from the encoder
// memory) on the same code path as self-attention.
type multiHeadAttention struct {
	heads   int64
	dim     int64
	qProj   *linear
	kProj   *linear
	vProj   *linear
	outProj *linear
	dropout float32
}

func newMultiHeadAttention(rng *rand.Rand, dim, heads int64, dropout float32) (*multiHeadAttention, error) {
	if heads <= 0 || dim%heads != 0 {
		return nil, fmt.Errorf("model: attention dim %d not divisible by %d heads", dim, heads)
	}

	return &multiHeadAttention{
		heads:   heads,
		dim:     dim,
		qProj:   newLinear(rng, dim, dim),
		kProj:   newLinear(rng, dim, dim),
		vProj:   newLinear(rng, dim, dim),
		outProj: newLinear(rng, dim, dim),
		dropout: dropout,
	}, nil
}

func loadMultiHeadAttention(vb *VarBuilder, name string, dim, heads int64, dropout float32) (*multiHeadAttention, error) {
	if heads <= 0 || dim%heads != 0 {
		return nil, fmt.Errorf("model: attention dim %d not divisible by %d heads", dim, heads)
	}

	qProj, err := loadLinear(vb, name+".q_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	kProj, err := loadLinear(vb, name+".k_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	vProj, err := loadLinear(vb, name+".v_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	outProj, err := loadLinear(vb, name+".out_proj", dim, dim)
	if err != nil {
		return nil, err
	}

	return &multiHeadAttention{
		heads:   heads,
		dim:     dim,
		qProj:   qProj,
		kProj:   kProj,
		vProj:   vProj,
		outProj: outProj,
		dropout: dropout,
	}, nil
}

// forward attends query [N, Tq, E] over key/value [N, Tk, E] producing
// [N, Tq, E]. Masks must broadcast against the per-head score shape
// [N, heads, Tq, Tk].
func (m *multiHeadAttention) forward(query, key, value *tensor.Tensor, training bool, rng *rand.Rand, masks ...*tensor.Tensor) (*tensor.Tensor, error) {
	if m == nil || m.qProj == nil {
		return nil, errors.New("model: attention is not initialized")
	}

	q, err := m.qProj.forward(query)
	if err != nil {
		return nil, fmt.Errorf("model: attention query projection: %w", err)
	}

	k, err := m.kProj.forward(key)
	if err != nil {
		return nil, fmt.Errorf("model: attention key projection: %w", err)
	}

	v, err := m.vProj.forward(value)
	if err != nil {
		return nil, fmt.Errorf("model: attention value projection: %w", err)
	}

	qh, err := m.splitHeads(q)
	if err != nil {
		return nil, err
	}

	kh, err := m.splitHeads(k)
	if err != nil {
		return nil, err
	}

	vh, err := m.splitHeads(v)
	if err != nil {
		return nil, err
	}

	ctxHeads, err := ops.Attention(qh, kh, vh, masks...)
	if err != nil {
		return nil, err
	}

	if training && m.dropout > 0 {
		ctxHeads, err = ops.Dropout(ctxHeads, m.dropout, rng)
		if err != nil {
			return nil, err
		}
	}

	merged, err := m.mergeHeads(ctxHeads)
	if err != nil {
		return nil, err
	}

	return m.outProj.forward(merged)
}

// splitHeads reshapes [N, T, E] into [N, heads, T, E/heads].
func (m *multiHeadAttention) splitHeads(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != m.dim {
		return nil, fmt.Errorf("model: attention input shape %v, want [N, T, %d]", shape, m.dim)
	}

	headDim := m.dim / m.heads

	byHead, err := x.Reshape([]int64{shape[0], shape[1], m.heads, headDim})
	if err != nil {
		return nil, err
	}

	return byHead.Transpose(1, 2)
}

// mergeHeads reshapes [N, heads, T, E/heads] back into [N, T, E].
func (m *multiHeadAttention) mergeHeads(x *tensor.Tensor) (*tensor.Tensor, error) {
	byTime, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	shape := byTime.Shape()

	return byTime.Reshape([]int64{shape[0], shape[1], m.dim})
}

func (m *multiHeadAttention) export(name string, dst *[]safetensors.Tensor) {
	m.qProj.export(name+".q_proj", dst)
	m.kProj.export(name+".k_proj", dst)
	m.vProj.export(name+".v_proj", dst)
	m.outProj.export(name+".out_proj", dst)
}
