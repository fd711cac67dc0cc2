package voice_activity_detection

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FluxDetector computes the positive spectral flux between consecutive frames.
type FluxDetector struct {
	frameSize    int
	window       []float64
	lastSpectrum []float64
}

func New(frameSize int) *FluxDetector {
	window := make([]float64, frameSize)
	for i := range window {
		// hann window keeps frame edges from smearing energy across bins
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(frameSize-1))
	}

	return &FluxDetector{
		frameSize: frameSize,
		window:    window,
	}
}

// Flux returns the sum of positive magnitude increases of every frequency bin
// compared with the previous frame. The first frame is compared with silence.
func (v *FluxDetector) Flux(samples []int16) float64 {
	in := make([]float64, v.frameSize)
	for i := 0; i < v.frameSize && i < len(samples); i++ {
		in[i] = float64(samples[i]) / 32768 * v.window[i]
	}

	spectrum := fft.FFTReal(in)
	bins := len(spectrum)/2 + 1
	magnitudes := make([]float64, bins)

	var flux float64

	for i := 0; i < bins; i++ {
		magnitudes[i] = cmplx.Abs(spectrum[i])

		var previous float64
		if v.lastSpectrum != nil {
			previous = v.lastSpectrum[i]
		}

		if diff := magnitudes[i] - previous; diff > 0 {
			flux += diff
		}
	}

	v.lastSpectrum = magnitudes

	return flux
}

func (v *FluxDetector) Reset() {
	v.lastSpectrum = nil
}

// Peak returns the largest absolute sample magnitude in the frame.
func Peak(samples []int16) int {
	peak := 0

	for _, s := range samples {
		level := int(s)
		if level < 0 {
			level = -level
		}

		if level > peak {
			peak = level
		}
	}

	return peak
}

// RMS returns the root mean square energy of the frame on the int16 scale.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
