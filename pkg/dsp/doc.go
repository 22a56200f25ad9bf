// Package dsp provides the signal processing helpers used around the
// playout path and by the test server: analysis windows, spectral peak
// detection, sample-by-sample gain control, FIR low-pass design and
// waterfall intensity scaling.
//
// All functions are pure. The generic ones accept float32 or float64 slices.
package dsp

// Number is the sample type accepted by the generic helpers
type Number interface {
	~float32 | ~float64
}
