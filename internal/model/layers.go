// Package model implements the sequence-to-sequence transformer that maps
// token ids to mel-spectrogram frames, including the autoregressive
// inference loop with learned stop gating.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/ops"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

type linear struct {
	weight *tensor.Tensor // [out, in]
	bias   *tensor.Tensor // [out]
}

func newLinear(rng *rand.Rand, in, out int64) *linear {
	bound := float32(1.0 / math.Sqrt(float64(in)))

	return &linear{
		weight: mustNew(randUniform(rng, in*out, bound), []int64{out, in}),
		bias:   mustNew(randUniform(rng, out, bound), []int64{out}),
	}
}

func loadLinear(vb *VarBuilder, name string, in, out int64) (*linear, error) {
	w, err := vb.Tensor(name+".weight", out, in)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor(name+".bias", out)
	if err != nil {
		return nil, err
	}

	return &linear{weight: w, bias: b}, nil
}

func (l *linear) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.weight == nil {
		return nil, errors.New("model: linear is not initialized")
	}

	return tensor.Linear(x, l.weight, l.bias)
}

func (l *linear) export(name string, dst *[]safetensors.Tensor) {
	appendParam(dst, name+".weight", l.weight)
	appendParam(dst, name+".bias", l.bias)
}

type layerNorm struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
	eps    float32
}

func newLayerNorm(dim int64) *layerNorm {
	return &layerNorm{
		weight: mustNew(filled(dim, 1), []int64{dim}),
		bias:   mustNew(filled(dim, 0), []int64{dim}),
		eps:    1e-5,
	}
}

func loadLayerNorm(vb *VarBuilder, name string, dim int64) (*layerNorm, error) {
	w, err := vb.Tensor(name+".weight", dim)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor(name+".bias", dim)
	if err != nil {
		return nil, err
	}

	return &layerNorm{weight: w, bias: b, eps: 1e-5}, nil
}

func (ln *layerNorm) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if ln == nil || ln.weight == nil {
		return nil, errors.New("model: layernorm is not initialized")
	}

	return tensor.LayerNorm(x, ln.weight, ln.bias, ln.eps)
}

func (ln *layerNorm) export(name string, dst *[]safetensors.Tensor) {
	appendParam(dst, name+".weight", ln.weight)
	appendParam(dst, name+".bias", ln.bias)
}

type embedding struct {
	weight *tensor.Tensor // [num, dim]
}

func newEmbedding(rng *rand.Rand, num, dim int64) *embedding {
	return &embedding{weight: mustNew(randNormal(rng, num*dim), []int64{num, dim})}
}

func loadEmbedding(vb *VarBuilder, name string, num, dim int64) (*embedding, error) {
	w, err := vb.Tensor(name+".weight", num, dim)
	if err != nil {
		return nil, err
	}

	return &embedding{weight: w}, nil
}

// lookup gathers rows for a batch of index sequences into [N, S, dim].
func (e *embedding) lookup(indices [][]int64) (*tensor.Tensor, error) {
	if e == nil || e.weight == nil {
		return nil, errors.New("model: embedding is not initialized")
	}

	if len(indices) == 0 || len(indices[0]) == 0 {
		return nil, errors.New("model: embedding lookup requires non-empty indices")
	}

	num, _ := e.weight.Dim(0)
	dim, _ := e.weight.Dim(1)
	seqLen := len(indices[0])
	rows := e.weight.RawData()
	out := make([]float32, len(indices)*seqLen*int(dim))

	for n, seq := range indices {
		if len(seq) != seqLen {
			return nil, fmt.Errorf("model: embedding lookup row %d has length %d, want %d", n, len(seq), seqLen)
		}

		for s, idx := range seq {
			if idx < 0 || idx >= num {
				return nil, fmt.Errorf("model: embedding index %d out of range [0, %d)", idx, num)
			}

			dst := (n*seqLen + s) * int(dim)
			copy(out[dst:dst+int(dim)], rows[idx*dim:(idx+1)*dim])
		}
	}

	return tensor.New(out, []int64{int64(len(indices)), int64(seqLen), dim})
}

// slice returns the first length rows as [length, dim].
func (e *embedding) slice(length int64) (*tensor.Tensor, error) {
	if e == nil || e.weight == nil {
		return nil, errors.New("model: embedding is not initialized")
	}

	return e.weight.Narrow(0, 0, length)
}

func (e *embedding) export(name string, dst *[]safetensors.Tensor) {
	appendParam(dst, name+".weight", e.weight)
}

type conv1d struct {
	weight  *tensor.Tensor // [out, in, k]
	bias    *tensor.Tensor // [out]
	padding int64
}

func newConv1d(rng *rand.Rand, in, out, kernelSize int64) *conv1d {
	bound := float32(1.0 / math.Sqrt(float64(in*kernelSize)))

	return &conv1d{
		weight:  mustNew(randUniform(rng, out*in*kernelSize, bound), []int64{out, in, kernelSize}),
		bias:    mustNew(randUniform(rng, out, bound), []int64{out}),
		padding: (kernelSize - 1) / 2,
	}
}

func loadConv1d(vb *VarBuilder, name string, in, out, kernelSize int64) (*conv1d, error) {
	w, err := vb.Tensor(name+".weight", out, in, kernelSize)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor(name+".bias", out)
	if err != nil {
		return nil, err
	}

	return &conv1d{weight: w, bias: b, padding: (kernelSize - 1) / 2}, nil
}

func (c *conv1d) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if c == nil || c.weight == nil {
		return nil, errors.New("model: conv1d is not initialized")
	}

	return ops.Conv1D(x, c.weight, c.bias, 1, c.padding, 1)
}

func (c *conv1d) export(name string, dst *[]safetensors.Tensor) {
	appendParam(dst, name+".weight", c.weight)
	appendParam(dst, name+".bias", c.bias)
}

const batchNormMomentum = 0.1

type batchNorm struct {
	weight      *tensor.Tensor
	bias        *tensor.Tensor
	runningMean []float64
	runningVar  []float64
	eps         float32
}

func newBatchNorm(channels int64) *batchNorm {
	runningVar := make([]float64, channels)
	for i := range runningVar {
		runningVar[i] = 1
	}

	return &batchNorm{
		weight:      mustNew(filled(channels, 1), []int64{channels}),
		bias:        mustNew(filled(channels, 0), []int64{channels}),
		runningMean: make([]float64, channels),
		runningVar:  runningVar,
		eps:         1e-5,
	}
}

func loadBatchNorm(vb *VarBuilder, name string, channels int64) (*batchNorm, error) {
	w, err := vb.Tensor(name+".weight", channels)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor(name+".bias", channels)
	if err != nil {
		return nil, err
	}

	mean, err := vb.Tensor(name+".running_mean", channels)
	if err != nil {
		return nil, err
	}

	variance, err := vb.Tensor(name+".running_var", channels)
	if err != nil {
		return nil, err
	}

	return &batchNorm{
		weight:      w,
		bias:        b,
		runningMean: toFloat64(mean.RawData()),
		runningVar:  toFloat64(variance.RawData()),
		eps:         1e-5,
	}, nil
}

// forward normalizes with batch statistics while training (updating the
// running estimates) and with running statistics otherwise.
func (bn *batchNorm) forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if bn == nil || bn.weight == nil {
		return nil, errors.New("model: batchnorm is not initialized")
	}

	if !training {
		return ops.BatchNorm1D(x, bn.runningMean, bn.runningVar, bn.weight, bn.bias, bn.eps)
	}

	mean, variance, err := ops.BatchStats1D(x)
	if err != nil {
		return nil, err
	}

	shape := x.Shape()

	count := float64(shape[0] * shape[2])
	for c := range bn.runningMean {
		unbiased := variance[c]
		if count > 1 {
			unbiased = variance[c] * count / (count - 1)
		}

		bn.runningMean[c] = (1-batchNormMomentum)*bn.runningMean[c] + batchNormMomentum*mean[c]
		bn.runningVar[c] = (1-batchNormMomentum)*bn.runningVar[c] + batchNormMomentum*unbiased
	}

	return ops.BatchNorm1D(x, mean, variance, bn.weight, bn.bias, bn.eps)
}

func (bn *batchNorm) export(name string, dst *[]safetensors.Tensor) {
	appendParam(dst, name+".weight", bn.weight)
	appendParam(dst, name+".bias", bn.bias)

	channels := int64(len(bn.runningMean))
	*dst = append(*dst,
		safetensors.Tensor{Name: name + ".running_mean", Shape: []int64{channels}, Data: toFloat32(bn.runningMean)},
		safetensors.Tensor{Name: name + ".running_var", Shape: []int64{channels}, Data: toFloat32(bn.runningVar)},
	)
}

func appendParam(dst *[]safetensors.Tensor, name string, t *tensor.Tensor) {
	*dst = append(*dst, safetensors.Tensor{Name: name, Shape: t.Shape(), Data: t.Data()})
}

func mustNew(data []float32, shape []int64) *tensor.Tensor {
	t, err := tensor.New(data, shape)
	if err != nil {
		panic(fmt.Sprintf("model: internal tensor construction: %v", err))
	}

	return t
}

func filled(n int64, value float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = value
	}

	return out
}

func randUniform(rng *rand.Rand, n int64, bound float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = (rng.Float32()*2 - 1) * bound
	}

	return out
}

func randNormal(rng *rand.Rand, n int64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}

	return out
}

func toFloat64(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}

	return out
}

func toFloat32(src []float64) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}

	return out
}
