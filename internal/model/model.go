package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/ops"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

// gatePadFill is the logit written at padded decoder steps. Its sigmoid is
// effectively 1, so padding always reads as "stop" to the gate loss.
const gatePadFill = 1e3

// Config fixes every dimension of the network. Changing a value after
// construction has no effect; build a new model instead.
type Config struct {
	TextNumEmbeddings    int64
	EmbeddingSize        int64
	EncoderEmbeddingSize int64
	DimFeedforward       int64
	EncoderKernelSize    int64
	PostnetEmbeddingSize int64
	PostnetKernelSize    int64
	MelFreq              int64
	MaxMelTime           int64
	Heads                int64

	// DecoderPrenetAlwaysDropout keeps the decoder prenet dropout active at
	// inference. On by default; turn off for deterministic generation.
	DecoderPrenetAlwaysDropout bool

	// Seed drives weight initialization and all dropout draws.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		TextNumEmbeddings:          256,
		EmbeddingSize:              256,
		EncoderEmbeddingSize:       512,
		DimFeedforward:             1024,
		EncoderKernelSize:          3,
		PostnetEmbeddingSize:       1024,
		PostnetKernelSize:          5,
		MelFreq:                    128,
		MaxMelTime:                 1024,
		Heads:                      4,
		DecoderPrenetAlwaysDropout: true,
		Seed:                       42,
	}
}

func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int64
	}{
		{"text_num_embeddings", c.TextNumEmbeddings},
		{"embedding_size", c.EmbeddingSize},
		{"encoder_embedding_size", c.EncoderEmbeddingSize},
		{"dim_feedforward", c.DimFeedforward},
		{"encoder_kernel_size", c.EncoderKernelSize},
		{"postnet_embedding_size", c.PostnetEmbeddingSize},
		{"postnet_kernel_size", c.PostnetKernelSize},
		{"mel_freq", c.MelFreq},
		{"max_mel_time", c.MaxMelTime},
		{"heads", c.Heads},
	}

	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("model: config %s must be > 0, got %d", p.name, p.value)
		}
	}

	if c.EmbeddingSize%c.Heads != 0 {
		return fmt.Errorf("model: embedding_size %d must be divisible by heads %d", c.EmbeddingSize, c.Heads)
	}

	if c.EncoderKernelSize%2 == 0 || c.PostnetKernelSize%2 == 0 {
		return errors.New("model: kernel sizes must be odd for same-padding convolutions")
	}

	return nil
}

// InferenceState is the terminal state of one autoregressive generation run.
type InferenceState int

const (
	// StateStopped means the gate fired before the length cap.
	StateStopped InferenceState = iota
	// StateTruncated means the length cap was reached without the gate
	// firing; the returned mel may be incomplete speech.
	StateTruncated
)

func (s InferenceState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("InferenceState(%d)", int(s))
	}
}

// InferenceResult carries one generated mel sequence along with the per-step
// gate probabilities observed during generation.
type InferenceResult struct {
	Mel   *tensor.Tensor // [1, frames, mel_freq], including the start frame
	Gates []float32      // sigmoid gate value per generated step
	State InferenceState
}

// Model is the full text-to-mel transformer. It is not safe for concurrent
// use: forward passes draw from the shared RNG and training mode mutates
// batchnorm running statistics.
type Model struct {
	cfg      Config
	rng      *rand.Rand
	training bool

	encoderPrenet *encoderPreNet
	decoderPrenet *decoderPreNet
	postnet       *postNet
	posEncoding   *embedding
	encoderBlocks [3]*encoderBlock
	decoderBlocks [3]*decoderBlock
	normMemory    *layerNorm
	melLinear     *linear
	gateLinear    *linear
}

// New builds a model with randomly initialized weights from cfg.Seed.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &Model{
		cfg:           cfg,
		rng:           rng,
		encoderPrenet: newEncoderPreNet(rng, cfg),
		decoderPrenet: newDecoderPreNet(rng, cfg),
		postnet:       newPostNet(rng, cfg),
		posEncoding:   newEmbedding(rng, cfg.MaxMelTime, cfg.EmbeddingSize),
		normMemory:    newLayerNorm(cfg.EmbeddingSize),
		melLinear:     newLinear(rng, cfg.EmbeddingSize, cfg.MelFreq),
		gateLinear:    newLinear(rng, cfg.EmbeddingSize, 1),
	}

	for i := range m.encoderBlocks {
		block, err := newEncoderBlock(rng, cfg)
		if err != nil {
			return nil, err
		}

		m.encoderBlocks[i] = block
	}

	for i := range m.decoderBlocks {
		block, err := newDecoderBlock(rng, cfg)
		if err != nil {
			return nil, err
		}

		m.decoderBlocks[i] = block
	}

	return m, nil
}

// Load reads model weights from a safetensors checkpoint at path.
func Load(path string, cfg Config) (*Model, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return LoadStore(store, cfg)
}

// LoadStore builds a model from an already open checkpoint store.
func LoadStore(store *safetensors.Store, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vb := NewVarBuilder(store)

	m := &Model{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}

	var err error

	m.encoderPrenet, err = loadEncoderPreNet(vb, cfg)
	if err != nil {
		return nil, err
	}

	m.decoderPrenet, err = loadDecoderPreNet(vb, cfg)
	if err != nil {
		return nil, err
	}

	m.postnet, err = loadPostNet(vb, cfg)
	if err != nil {
		return nil, err
	}

	m.posEncoding, err = loadEmbedding(vb, "pos_encoding", cfg.MaxMelTime, cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	m.normMemory, err = loadLayerNorm(vb, "norm_memory", cfg.EmbeddingSize)
	if err != nil {
		return nil, err
	}

	m.melLinear, err = loadLinear(vb, "linear_1", cfg.EmbeddingSize, cfg.MelFreq)
	if err != nil {
		return nil, err
	}

	m.gateLinear, err = loadLinear(vb, "linear_2", cfg.EmbeddingSize, 1)
	if err != nil {
		return nil, err
	}

	for i := range m.encoderBlocks {
		m.encoderBlocks[i], err = loadEncoderBlock(vb, fmt.Sprintf("encoder_block_%d", i+1), cfg)
		if err != nil {
			return nil, err
		}
	}

	for i := range m.decoderBlocks {
		m.decoderBlocks[i], err = loadDecoderBlock(vb, fmt.Sprintf("decoder_block_%d", i+1), cfg)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Model) Config() Config {
	return m.cfg
}

// SetTraining switches between training mode (all dropout active, batchnorm
// uses and updates batch statistics) and evaluation mode. Models start in
// evaluation mode.
func (m *Model) SetTraining(training bool) {
	m.training = training
}

// Forward runs a teacher-forced pass.
//
// text is a padded batch of token id rows [N][S]; textLens holds true row
// lengths. mel is a padded frame batch [N, L, F] with melLens the true frame
// counts. Returns (melPostnet [N,L,F], melLinear [N,L,F], gate [N,L]) with
// padded steps zeroed in the mel outputs and gate logits forced to a large
// positive constant there.
func (m *Model) Forward(text [][]int64, textLens []int64, mel *tensor.Tensor, melLens []int64) (melPostnet, melOut, gate *tensor.Tensor, err error) {
	batch, textLen, melLen, err := m.validateForward(text, textLens, mel, melLens)
	if err != nil {
		return nil, nil, nil, err
	}

	srcPad, err := ops.PaddingMask(textLens, textLen)
	if err != nil {
		return nil, nil, nil, err
	}

	tgtPad, err := ops.PaddingMask(melLens, melLen)
	if err != nil {
		return nil, nil, nil, err
	}

	// Masks broadcast over [N, heads, Tq, Tk]; padding masks need the extra
	// head and query axes.
	srcPad4d, err := srcPad.Reshape([]int64{batch, 1, 1, textLen})
	if err != nil {
		return nil, nil, nil, err
	}

	tgtPad4d, err := tgtPad.Reshape([]int64{batch, 1, 1, melLen})
	if err != nil {
		return nil, nil, nil, err
	}

	causal, err := ops.CausalMask(melLen, melLen)
	if err != nil {
		return nil, nil, nil, err
	}

	memMask, err := ops.CausalMask(melLen, textLen)
	if err != nil {
		return nil, nil, nil, err
	}

	memory, err := m.encode(text, textLen, srcPad4d)
	if err != nil {
		return nil, nil, nil, err
	}

	decoded, err := m.decode(mel, memory, melLen, causal, tgtPad4d, memMask, srcPad4d)
	if err != nil {
		return nil, nil, nil, err
	}

	melOut, err = m.melLinear.forward(decoded)
	if err != nil {
		return nil, nil, nil, err
	}

	residual, err := m.postnet.forward(melOut, m.training, m.rng)
	if err != nil {
		return nil, nil, nil, err
	}

	melPostnet, err = tensor.BroadcastAdd(melOut, residual)
	if err != nil {
		return nil, nil, nil, err
	}

	gateFull, err := m.gateLinear.forward(decoded)
	if err != nil {
		return nil, nil, nil, err
	}

	gate, err = gateFull.Reshape([]int64{batch, melLen})
	if err != nil {
		return nil, nil, nil, err
	}

	maskPaddedFrames(melOut, melLens)
	maskPaddedFrames(melPostnet, melLens)
	fillPaddedGate(gate, melLens)

	return melPostnet, melOut, gate, nil
}

func (m *Model) encode(text [][]int64, textLen int64, srcPad4d *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := m.encoderPrenet.forward(text, m.training, m.rng)
	if err != nil {
		return nil, err
	}

	pos, err := m.posEncoding.slice(textLen)
	if err != nil {
		return nil, err
	}

	x, err = tensor.BroadcastAdd(x, pos)
	if err != nil {
		return nil, err
	}

	for _, block := range m.encoderBlocks {
		x, err = block.forward(x, srcPad4d, m.training, m.rng)
		if err != nil {
			return nil, err
		}
	}

	return m.normMemory.forward(x)
}

func (m *Model) decode(
	mel, memory *tensor.Tensor,
	melLen int64,
	causal, tgtPad4d, memMask, srcPad4d *tensor.Tensor,
) (*tensor.Tensor, error) {
	x, err := m.decoderPrenet.forward(mel, m.training, m.rng)
	if err != nil {
		return nil, err
	}

	pos, err := m.posEncoding.slice(melLen)
	if err != nil {
		return nil, err
	}

	x, err = tensor.BroadcastAdd(x, pos)
	if err != nil {
		return nil, err
	}

	for _, block := range m.decoderBlocks {
		x, err = block.forward(x, memory, causal, tgtPad4d, memMask, srcPad4d, m.training, m.rng)
		if err != nil {
			return nil, err
		}
	}

	return x, nil
}

func (m *Model) validateForward(text [][]int64, textLens []int64, mel *tensor.Tensor, melLens []int64) (batch, textLen, melLen int64, err error) {
	if len(text) == 0 || len(text[0]) == 0 {
		return 0, 0, 0, errors.New("model: forward requires a non-empty text batch")
	}

	batch = int64(len(text))
	textLen = int64(len(text[0]))

	if int64(len(textLens)) != batch {
		return 0, 0, 0, fmt.Errorf("model: text lengths count %d does not match batch %d", len(textLens), batch)
	}

	if mel == nil {
		return 0, 0, 0, errors.New("model: forward requires a mel tensor")
	}

	melShape := mel.Shape()
	if len(melShape) != 3 {
		return 0, 0, 0, fmt.Errorf("model: mel must be [N, L, F], got %v", melShape)
	}

	if melShape[0] != batch {
		return 0, 0, 0, fmt.Errorf("model: mel batch %d does not match text batch %d", melShape[0], batch)
	}

	if melShape[2] != m.cfg.MelFreq {
		return 0, 0, 0, fmt.Errorf("model: mel has %d bins, model configured for %d", melShape[2], m.cfg.MelFreq)
	}

	melLen = melShape[1]
	if int64(len(melLens)) != batch {
		return 0, 0, 0, fmt.Errorf("model: mel lengths count %d does not match batch %d", len(melLens), batch)
	}

	if textLen > m.cfg.MaxMelTime || melLen > m.cfg.MaxMelTime {
		return 0, 0, 0, fmt.Errorf(
			"model: sequence lengths %d/%d exceed positional table size %d",
			textLen,
			melLen,
			m.cfg.MaxMelTime,
		)
	}

	for n, l := range textLens {
		if l < 1 || l > textLen {
			return 0, 0, 0, fmt.Errorf("model: text length %d (%d) out of range [1, %d]", n, l, textLen)
		}
	}

	for n, l := range melLens {
		if l < 1 || l > melLen {
			return 0, 0, 0, fmt.Errorf("model: mel length %d (%d) out of range [1, %d]", n, l, melLen)
		}
	}

	return batch, textLen, melLen, nil
}

// Infer autoregressively generates mel frames for a single token sequence.
// The buffer starts with one all-zero start frame; each step runs a full
// forward pass over the growing buffer and appends the last predicted frame.
// Generation stops when sigmoid(gate) at the newest step exceeds
// gateThreshold (the triggering frame is dropped from the result) or after
// maxLength generated frames.
func (m *Model) Infer(ctx context.Context, text []int64, maxLength int64, gateThreshold float32) (*InferenceResult, error) {
	if len(text) == 0 {
		return nil, errors.New("model: infer requires a non-empty token sequence")
	}

	if maxLength < 1 {
		return nil, fmt.Errorf("model: infer max length must be >= 1, got %d", maxLength)
	}

	if maxLength+1 > m.cfg.MaxMelTime {
		return nil, fmt.Errorf("model: infer max length %d exceeds positional table size %d", maxLength, m.cfg.MaxMelTime)
	}

	freq := int(m.cfg.MelFreq)
	textBatch := [][]int64{text}
	textLens := []int64{int64(len(text))}

	// Growable frame buffer, seeded with the all-zero start frame.
	frames := make([]float32, freq, int(maxLength+1)*freq)
	gates := make([]float32, 0, maxLength)

	for step := int64(0); step < maxLength; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("model: infer canceled at step %d: %w", step, err)
		}

		cur := int64(len(frames) / freq)

		mel, err := tensor.New(frames, []int64{1, cur, m.cfg.MelFreq})
		if err != nil {
			return nil, err
		}

		melPostnet, _, gate, err := m.Forward(textBatch, textLens, mel, []int64{cur})
		if err != nil {
			return nil, fmt.Errorf("model: infer step %d: %w", step, err)
		}

		lastFrame, err := melPostnet.Narrow(1, cur-1, 1)
		if err != nil {
			return nil, err
		}

		frames = append(frames, lastFrame.RawData()...)

		gateProb := sigmoid(gate.RawData()[cur-1])
		gates = append(gates, gateProb)

		if gateProb > gateThreshold {
			// The newest frame triggered the stop; exclude it.
			mel, err := tensor.New(frames[:int(cur)*freq], []int64{1, cur, m.cfg.MelFreq})
			if err != nil {
				return nil, err
			}

			return &InferenceResult{Mel: mel, Gates: gates, State: StateStopped}, nil
		}
	}

	total := int64(len(frames)) / int64(freq)

	mel, err := tensor.New(frames, []int64{1, total, m.cfg.MelFreq})
	if err != nil {
		return nil, err
	}

	return &InferenceResult{Mel: mel, Gates: gates, State: StateTruncated}, nil
}

func maskPaddedFrames(mel *tensor.Tensor, lens []int64) {
	shape := mel.Shape()
	melLen, freq := shape[1], shape[2]
	data := mel.RawData()

	for n, l := range lens {
		start := (int64(n)*melLen + l) * freq
		end := (int64(n) + 1) * melLen * freq

		for i := start; i < end; i++ {
			data[i] = 0
		}
	}
}

func fillPaddedGate(gate *tensor.Tensor, lens []int64) {
	shape := gate.Shape()
	melLen := shape[1]
	data := gate.RawData()

	for n, l := range lens {
		for t := l; t < melLen; t++ {
			data[int64(n)*melLen+t] = gatePadFill
		}
	}
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}
