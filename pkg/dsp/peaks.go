// ABOUTME: Spectral peak detection
// ABOUTME: Finds local maxima above a median noise floor, ordered by SNR
package dsp

import "sort"

// Peak is a detected signal in a power spectrum
type Peak struct {
	Bin   int
	Power float64
	SNR   float64
}

// NoiseFloor returns the median of the spectrum. Even lengths average the
// two middle values.
func NoiseFloor[T Number](spectrum []T) float64 {
	if len(spectrum) == 0 {
		return 0
	}
	sorted := make([]float64, len(spectrum))
	for i, v := range spectrum {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// FindPeaks returns bins that exceed the noise floor by more than thresholdDB
// and are the maximum of their ±minDistance neighbourhood. After a peak is
// accepted the next minDistance bins are skipped. Results are sorted by SNR,
// strongest first.
func FindPeaks[T Number](spectrum []T, thresholdDB float64, minDistance int) []Peak {
	if minDistance < 1 {
		minDistance = 1
	}
	floor := NoiseFloor(spectrum)
	n := len(spectrum)

	var peaks []Peak
	for i := 0; i < n; i++ {
		v := float64(spectrum[i])
		if v <= floor+thresholdDB || !isLocalMax(spectrum, i, minDistance) {
			continue
		}
		peaks = append(peaks, Peak{Bin: i, Power: v, SNR: v - floor})
		i += minDistance
	}

	sort.SliceStable(peaks, func(a, b int) bool {
		return peaks[a].SNR > peaks[b].SNR
	})
	return peaks
}

func isLocalMax[T Number](spectrum []T, i, distance int) bool {
	lo := i - distance
	if lo < 0 {
		lo = 0
	}
	hi := i + distance
	if hi > len(spectrum)-1 {
		hi = len(spectrum) - 1
	}
	for j := lo; j <= hi; j++ {
		if spectrum[j] > spectrum[i] {
			return false
		}
	}
	return true
}
