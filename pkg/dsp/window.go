// ABOUTME: Analysis window functions
// ABOUTME: Symmetric closed-form rectangular, Hann, Hamming and Blackman windows
package dsp

import (
	"fmt"
	"math"
	"strings"
)

// WindowKind selects a window shape
type WindowKind int

const (
	Rectangular WindowKind = iota
	Hann
	Hamming
	Blackman
)

func (k WindowKind) String() string {
	switch k {
	case Rectangular:
		return "rectangular"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	default:
		return fmt.Sprintf("window(%d)", int(k))
	}
}

// ParseWindowKind accepts the window names returned by String
func ParseWindowKind(name string) (WindowKind, error) {
	switch strings.ToLower(name) {
	case "rectangular", "rect", "boxcar":
		return Rectangular, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	}
	return 0, fmt.Errorf("unknown window %q", name)
}

// Window returns n coefficients of the given shape. n <= 0 yields an empty
// window and n == 1 yields [1].
func Window(kind WindowKind, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}

	m := float64(n - 1)
	for i := range w {
		x := 2 * math.Pi * float64(i) / m
		switch kind {
		case Hann:
			w[i] = 0.5 - 0.5*math.Cos(x)
		case Hamming:
			w[i] = 0.54 - 0.46*math.Cos(x)
		case Blackman:
			w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		default:
			w[i] = 1
		}
	}
	return w
}

// ApplyWindow multiplies samples by w in place. The shorter length wins.
func ApplyWindow[T Number](samples []T, w []float64) {
	n := len(samples)
	if len(w) < n {
		n = len(w)
	}
	for i := 0; i < n; i++ {
		samples[i] = T(float64(samples[i]) * w[i])
	}
}
