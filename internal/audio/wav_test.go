package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	samples := sineWave(440, 8000, 512)

	data, err := EncodeWAV(samples, 8000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rate != 8000 {
		t.Fatalf("sample rate = %d, want 8000", rate)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}

	// 16-bit quantization loses precision; allow one LSB of error.
	const tolerance = 2.0 / 32768

	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > tolerance {
			t.Fatalf("sample %d = %f, want ~%f", i, decoded[i], samples[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Fatal("empty input accepted")
	}

	if _, _, err := DecodeWAV([]byte("not a wav file at all......")); err == nil {
		t.Fatal("garbage input accepted")
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, 8000); err == nil {
		t.Fatal("empty sample slice accepted")
	}

	if _, err := EncodeWAV([]float32{0}, 0); err == nil {
		t.Fatal("zero sample rate accepted")
	}
}
