// ABOUTME: Waterfall intensity scaling
// ABOUTME: Maps dB spectra to 0..255 using fixed or percentile bounds
package dsp

import (
	"math"
	"sort"
)

// NormalizeWaterfall maps each dB value linearly from [minDB, maxDB] onto
// 0..255, clipping outside the range. A degenerate range yields zeros.
func NormalizeWaterfall[T Number](spectrum []T, minDB, maxDB float64) []uint8 {
	out := make([]uint8, len(spectrum))
	span := maxDB - minDB
	if span <= 0 {
		return out
	}
	for i, v := range spectrum {
		x := (float64(v) - minDB) / span
		if x <= 0 || math.IsNaN(x) {
			continue
		}
		if x >= 1 {
			out[i] = 255
			continue
		}
		out[i] = uint8(x * 255)
	}
	return out
}

// AutoScale returns the lo and hi percentiles of the spectrum as display
// bounds, the receiver uses 5 and 95.
func AutoScale[T Number](spectrum []T, lo, hi float64) (minDB, maxDB float64) {
	if len(spectrum) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(spectrum))
	for i, v := range spectrum {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	return Percentile(sorted, lo), Percentile(sorted, hi)
}

// Percentile interpolates linearly between closest ranks of an ascending slice
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	i := int(rank)
	frac := rank - float64(i)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}
