package audio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

// logFloor keeps the log compression finite for silent frames.
const logFloor = 1e-10

// MelParams parameterizes STFT framing and the mel filterbank.
type MelParams struct {
	SampleRate int
	NFFT       int
	HopLength  int
	WinLength  int
	NMels      int64
	FMin       float64
	FMax       float64
}

func (p MelParams) validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be > 0, got %d", p.SampleRate)
	}

	if p.NFFT <= 0 || p.NFFT&(p.NFFT-1) != 0 {
		return fmt.Errorf("audio: n_fft must be a positive power of two, got %d", p.NFFT)
	}

	if p.HopLength <= 0 {
		return fmt.Errorf("audio: hop length must be > 0, got %d", p.HopLength)
	}

	if p.WinLength <= 0 || p.WinLength > p.NFFT {
		return fmt.Errorf("audio: window length %d must be in (0, n_fft=%d]", p.WinLength, p.NFFT)
	}

	if p.NMels <= 0 {
		return fmt.Errorf("audio: mel bin count must be > 0, got %d", p.NMels)
	}

	if p.FMin < 0 || p.FMax <= p.FMin {
		return fmt.Errorf("audio: invalid mel frequency range [%f, %f]", p.FMin, p.FMax)
	}

	if p.FMax > float64(p.SampleRate)/2 {
		return fmt.Errorf("audio: f_max %f above Nyquist %d", p.FMax, p.SampleRate/2)
	}

	return nil
}

// MelSpectrogram computes a log-mel spectrogram [frames, n_mels] from mono
// PCM samples: Hann-windowed STFT, power spectrum, triangular mel filterbank,
// log compression.
func MelSpectrogram(samples []float32, p MelParams) (*tensor.Tensor, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if len(samples) < p.WinLength {
		return nil, fmt.Errorf("audio: %d samples shorter than window length %d", len(samples), p.WinLength)
	}

	frames := 1 + (len(samples)-p.WinLength)/p.HopLength
	bins := p.NFFT/2 + 1
	window := hannWindow(p.WinLength)
	filters := melFilterbank(p, bins)

	fft := fourier.NewFFT(p.NFFT)
	frame := make([]float64, p.NFFT)
	spectrum := make([]complex128, bins)
	power := make([]float64, bins)
	out := make([]float32, frames*int(p.NMels))

	for f := range frames {
		start := f * p.HopLength

		for i := range frame {
			frame[i] = 0
		}

		for i := range p.WinLength {
			frame[i] = float64(samples[start+i]) * window[i]
		}

		spectrum = fft.Coefficients(spectrum, frame)

		for i, c := range spectrum {
			re, im := real(c), imag(c)
			power[i] = re*re + im*im
		}

		base := f * int(p.NMels)

		for m := range int(p.NMels) {
			var sum float64
			for i, w := range filters[m] {
				sum += w * power[i]
			}

			out[base+m] = float32(math.Log(math.Max(sum, logFloor)))
		}
	}

	return tensor.New(out, []int64{int64(frames), p.NMels})
}

func hannWindow(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}

	return out
}

// melFilterbank returns one triangular filter per mel bin over the FFT bins,
// spaced evenly on the mel scale between FMin and FMax.
func melFilterbank(p MelParams, bins int) [][]float64 {
	hzPerBin := float64(p.SampleRate) / float64(p.NFFT)
	melMin := hzToMel(p.FMin)
	melMax := hzToMel(p.FMax)

	// NMels+2 points: each filter spans [points[m], points[m+2]] and peaks
	// at points[m+1].
	points := make([]float64, p.NMels+2)
	for i := range points {
		mel := melMin + (melMax-melMin)*float64(i)/float64(len(points)-1)
		points[i] = melToHz(mel)
	}

	filters := make([][]float64, p.NMels)

	for m := range filters {
		filters[m] = make([]float64, bins)
		left, center, right := points[m], points[m+1], points[m+2]

		for i := range bins {
			hz := float64(i) * hzPerBin

			switch {
			case hz <= left || hz >= right:
			case hz <= center:
				filters[m][i] = (hz - left) / (center - left)
			default:
				filters[m][i] = (right - hz) / (right - center)
			}
		}
	}

	return filters
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}
