// ABOUTME: FIR low-pass design and convolution
// ABOUTME: Hamming-windowed sinc taps normalised to unity DC gain
package dsp

import (
	"errors"
	"fmt"
	"math"
)

// ErrTapCount is returned for FIR lengths that are not positive and odd
var ErrTapCount = errors.New("tap count must be positive and odd")

// LowPass designs a linear-phase low-pass filter with the given cutoff.
// The coefficients sum to 1.
func LowPass(cutoff, sampleRate float64, taps int) ([]float64, error) {
	if taps < 1 || taps%2 == 0 {
		return nil, fmt.Errorf("low-pass with %d taps: %w", taps, ErrTapCount)
	}
	if sampleRate <= 0 || cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, fmt.Errorf("cutoff %.1f Hz must be inside (0, %.1f)", cutoff, sampleRate/2)
	}

	fc := cutoff / sampleRate
	w := Window(Hamming, taps)
	h := make([]float64, taps)
	mid := taps / 2

	var sum float64
	for i := range h {
		n := float64(i - mid)
		if i == mid {
			h[i] = 2 * fc
		} else {
			h[i] = math.Sin(2*math.Pi*fc*n) / (math.Pi * n)
		}
		h[i] *= w[i]
		sum += h[i]
	}
	for i := range h {
		h[i] /= sum
	}
	return h, nil
}

// Convolve filters x with h and returns len(x) samples aligned on the
// centre tap. Samples outside x are treated as zero.
func Convolve[T Number](x []T, h []float64) []T {
	out := make([]T, len(x))
	if len(h) == 0 {
		return out
	}
	offset := len(h) / 2
	for n := range out {
		var acc float64
		for k, c := range h {
			j := n + offset - k
			if j < 0 || j >= len(x) {
				continue
			}
			acc += c * float64(x[j])
		}
		out[n] = T(acc)
	}
	return out
}
