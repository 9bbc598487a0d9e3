package audio

import (
	"math"
	"testing"
)

func testMelParams() MelParams {
	return MelParams{
		SampleRate: 8000,
		NFFT:       256,
		HopLength:  64,
		WinLength:  256,
		NMels:      16,
		FMin:       0,
		FMax:       4000,
	}
}

func sineWave(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}

	return out
}

func TestMelSpectrogramShape(t *testing.T) {
	p := testMelParams()
	samples := sineWave(440, p.SampleRate, 1024)

	mel, err := MelSpectrogram(samples, p)
	if err != nil {
		t.Fatalf("mel: %v", err)
	}

	shape := mel.Shape()
	wantFrames := int64(1 + (1024-p.WinLength)/p.HopLength)

	if shape[0] != wantFrames || shape[1] != p.NMels {
		t.Fatalf("mel shape = %v, want [%d %d]", shape, wantFrames, p.NMels)
	}
}

func TestMelSpectrogramToneConcentratesEnergy(t *testing.T) {
	p := testMelParams()

	// 500 Hz tone vs 3 kHz tone: the band holding the peak must differ.
	low, err := MelSpectrogram(sineWave(500, p.SampleRate, 2048), p)
	if err != nil {
		t.Fatalf("mel low: %v", err)
	}

	high, err := MelSpectrogram(sineWave(3000, p.SampleRate, 2048), p)
	if err != nil {
		t.Fatalf("mel high: %v", err)
	}

	if peakBin(low.RawData(), int(p.NMels)) >= peakBin(high.RawData(), int(p.NMels)) {
		t.Fatalf(
			"peak bin for 500 Hz (%d) not below peak bin for 3 kHz (%d)",
			peakBin(low.RawData(), int(p.NMels)),
			peakBin(high.RawData(), int(p.NMels)),
		)
	}
}

func TestMelSpectrogramSilenceIsFloored(t *testing.T) {
	p := testMelParams()

	mel, err := MelSpectrogram(make([]float32, 1024), p)
	if err != nil {
		t.Fatalf("mel: %v", err)
	}

	wantFloor := float32(math.Log(logFloor))
	for i, v := range mel.RawData() {
		if v != wantFloor {
			t.Fatalf("silent frame bin %d = %f, want log floor %f", i, v, wantFloor)
		}
	}
}

func TestMelSpectrogramValidation(t *testing.T) {
	p := testMelParams()

	if _, err := MelSpectrogram(make([]float32, 16), p); err == nil {
		t.Fatal("input shorter than window accepted")
	}

	bad := p
	bad.NFFT = 300 // not a power of two

	if _, err := MelSpectrogram(make([]float32, 1024), bad); err == nil {
		t.Fatal("non-power-of-two n_fft accepted")
	}

	bad = p
	bad.FMax = 6000 // above Nyquist for 8 kHz

	if _, err := MelSpectrogram(make([]float32, 1024), bad); err == nil {
		t.Fatal("f_max above Nyquist accepted")
	}

	bad = p
	bad.NMels = 0

	if _, err := MelSpectrogram(make([]float32, 1024), bad); err == nil {
		t.Fatal("zero mel bins accepted")
	}
}

// peakBin returns the mel band holding the largest value, averaged over
// frames by summing per band.
func peakBin(data []float32, nMels int) int {
	sums := make([]float64, nMels)
	for i, v := range data {
		sums[i%nMels] += float64(v)
	}

	best := 0
	for m, s := range sums {
		if s > sums[best] {
			best = m
		}
	}

	return best
}
