package tts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xenob8/SimpleTransfromerTTS/internal/config"
	"github.com/xenob8/SimpleTransfromerTTS/internal/model"
)

func testServiceConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Model.TextNumEmbeddings = 256
	cfg.Model.EmbeddingSize = 16
	cfg.Model.EncoderEmbeddingSize = 16
	cfg.Model.DimFeedforward = 32
	cfg.Model.PostnetEmbeddingSize = 16
	cfg.Model.MelFreq = 8
	cfg.Model.MaxMelTime = 64
	cfg.Model.DecoderPrenetAlwaysDropout = false
	cfg.Synth.MaxLength = 3
	cfg.Synth.GateThreshold = 2 // never fires; bounded generation for tests

	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := testServiceConfig()

	m, err := model.New(cfg.Model.ToModelConfig())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	svc, err := NewServiceWithModel(cfg, m)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return svc
}

func TestSynthesizeProducesMel(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	shape := res.Mel.Shape()
	if shape[0] != 1 || shape[1] != 4 || shape[2] != 8 {
		t.Fatalf("mel shape = %v, want [1 4 8]", shape)
	}

	if res.State != model.StateTruncated {
		t.Fatalf("state = %v, want truncated at max length", res.State)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("blank input accepted")
	}
}

func TestSynthesizeRejectsOverlongText(t *testing.T) {
	svc := newTestService(t)

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}

	if _, err := svc.Synthesize(context.Background(), string(long)); err == nil {
		t.Fatal("input beyond max_mel_time tokens accepted")
	}
}

func TestSynthesizeHonorsContext(t *testing.T) {
	svc := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Synthesize(ctx, "hello"); err == nil {
		t.Fatal("canceled context accepted")
	}
}

func TestNewServiceLoadsCheckpoint(t *testing.T) {
	cfg := testServiceConfig()
	cfg.Paths.ModelPath = filepath.Join(t.TempDir(), "model.safetensors")

	m, err := model.New(cfg.Model.ToModelConfig())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	if err := m.Save(cfg.Paths.ModelPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("synthesize with loaded model: %v", err)
	}
}

func TestNewServiceMissingCheckpoint(t *testing.T) {
	cfg := testServiceConfig()
	cfg.Paths.ModelPath = filepath.Join(t.TempDir(), "missing.safetensors")

	if _, err := NewService(cfg); err == nil {
		t.Fatal("missing checkpoint accepted")
	}
}
