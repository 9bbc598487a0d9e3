package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xenob8/SimpleTransfromerTTS/internal/model"
	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

type fakeSynthesizer struct {
	err error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string) (*model.InferenceResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	mel, err := tensor.New([]float32{1, 2, 3, 4}, []int64{1, 2, 2})
	if err != nil {
		return nil, err
	}

	return &model.InferenceResult{
		Mel:   mel,
		Gates: []float32{0.1, 0.9},
		State: model.StateStopped,
	}, nil
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"info", false},
		{"DEBUG", false},
		{"warn", false},
		{"warning", false},
		{"error", false},
		{"verbose", true},
	}

	for _, tc := range cases {
		_, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLogLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(&fakeSynthesizer{})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}

	if body["status"] != "ok" {
		t.Fatalf("health status field = %q, want ok", body["status"])
	}
}

func TestSynthesizeEndpoint(t *testing.T) {
	h := NewHandler(&fakeSynthesizer{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(`{"text":"hello"}`))

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("synthesize status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Frames  int64     `json:"frames"`
		MelFreq int64     `json:"mel_freq"`
		State   string    `json:"state"`
		Gates   []float32 `json:"gates"`
		Mel     string    `json:"mel"`
	}

	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Frames != 2 || body.MelFreq != 2 || body.State != "stopped" {
		t.Fatalf("response = %+v, want 2 frames, 2 bins, stopped", body)
	}

	raw, err := base64.StdEncoding.DecodeString(body.Mel)
	if err != nil {
		t.Fatalf("mel not base64: %v", err)
	}

	if len(raw) != 16 {
		t.Fatalf("mel payload = %d bytes, want 16 (4 float32)", len(raw))
	}

	if len(body.Gates) != 2 {
		t.Fatalf("gates = %v, want 2 values", body.Gates)
	}
}

func TestSynthesizeRejectsBadRequests(t *testing.T) {
	h := NewHandler(&fakeSynthesizer{}, WithMaxTextBytes(8))

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing text", http.MethodPost, `{}`, http.StatusBadRequest},
		{"oversized text", http.MethodPost, `{"text":"far too long for the limit"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, "/synthesize", strings.NewReader(tc.body))

		h.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestSynthesizeMapsErrors(t *testing.T) {
	h := NewHandler(&fakeSynthesizer{err: errors.New("model exploded")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(`{"text":"hello"}`))

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	h = NewHandler(&fakeSynthesizer{err: context.DeadlineExceeded})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(`{"text":"hello"}`))

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("timeout status = %d, want 504", rec.Code)
	}
}
