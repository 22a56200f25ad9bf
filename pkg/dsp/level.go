// ABOUTME: Signal level measurements
// ABOUTME: RMS and dBFS over sample blocks
package dsp

import "math"

// SilenceDBFS is reported for empty or all-zero blocks
const SilenceDBFS = -120.0

// RMS returns the root mean square of samples
func RMS[T Number](samples []T) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts the RMS of samples to decibels relative to full scale
func DBFS[T Number](samples []T) float64 {
	rms := RMS(samples)
	if rms <= 0 {
		return SilenceDBFS
	}
	db := 20 * math.Log10(rms)
	if db < SilenceDBFS {
		return SilenceDBFS
	}
	return db
}
