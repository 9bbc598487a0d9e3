// Package tts wires the tokenizer and model into a synthesis service.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xenob8/SimpleTransfromerTTS/internal/config"
	"github.com/xenob8/SimpleTransfromerTTS/internal/model"
	"github.com/xenob8/SimpleTransfromerTTS/internal/text"
)

// Service turns raw text into mel-spectrograms. A mutex serializes inference:
// the model's dropout RNG is shared state, and generation is CPU-bound anyway.
type Service struct {
	cfg   config.Config
	mu    sync.Mutex
	model *model.Model
	tok   *text.Tokenizer
	log   *slog.Logger
}

// NewService loads the checkpoint at cfg.Paths.ModelPath and builds the
// tokenizer from the configured vocabulary size.
func NewService(cfg config.Config) (*Service, error) {
	m, err := model.Load(cfg.Paths.ModelPath, cfg.Model.ToModelConfig())
	if err != nil {
		return nil, fmt.Errorf("tts: load model: %w", err)
	}

	return NewServiceWithModel(cfg, m)
}

// NewServiceWithModel builds a service around an existing model. Used by
// commands that construct the model themselves and by tests.
func NewServiceWithModel(cfg config.Config, m *model.Model) (*Service, error) {
	if m == nil {
		return nil, errors.New("tts: service requires a model")
	}

	tok, err := text.NewTokenizer(cfg.Model.TextNumEmbeddings)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:   cfg,
		model: m,
		tok:   tok,
		log:   slog.Default(),
	}, nil
}

// Synthesize generates a mel-spectrogram for input text using the configured
// generation limits.
func (s *Service) Synthesize(ctx context.Context, input string) (*model.InferenceResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("tts: empty input text")
	}

	tokens, err := s.tok.Encode(input)
	if err != nil {
		return nil, fmt.Errorf("tts: tokenize: %w", err)
	}

	maxTokens := s.cfg.Model.MaxMelTime
	if int64(len(tokens)) > maxTokens {
		return nil, fmt.Errorf("tts: input is %d tokens, limit is %d", len(tokens), maxTokens)
	}

	start := time.Now()

	s.mu.Lock()
	res, err := s.model.Infer(ctx, tokens, s.cfg.Synth.MaxLength, float32(s.cfg.Synth.GateThreshold))
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	frames, _ := res.Mel.Dim(1)
	s.log.InfoContext(ctx, "synthesis complete",
		slog.Int("tokens", len(tokens)),
		slog.Int64("frames", frames),
		slog.String("state", res.State.String()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return res, nil
}
