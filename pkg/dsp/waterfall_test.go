// ABOUTME: Tests for waterfall scaling and level helpers
// ABOUTME: Covers clipping, percentile bounds and dBFS
package dsp

import (
	"math"
	"testing"
)

func TestNormalizeWaterfall(t *testing.T) {
	got := NormalizeWaterfall([]float64{-120, -100, -60, -20, 0}, -100, -20)
	want := []uint8{0, 0, 127, 255, 255}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bin %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	if out := NormalizeWaterfall([]float32{1, 2}, 5, 5); out[0] != 0 || out[1] != 0 {
		t.Errorf("expected zeros for empty range, got %v", out)
	}
}

func TestAutoScale(t *testing.T) {
	spectrum := make([]float64, 101)
	for i := range spectrum {
		spectrum[100-i] = float64(i)
	}
	lo, hi := AutoScale(spectrum, 5, 95)
	if lo != 5 || hi != 95 {
		t.Errorf("expected 5/95, got %f/%f", lo, hi)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	if p := Percentile([]float64{0, 10}, 25); p != 2.5 {
		t.Errorf("expected 2.5, got %f", p)
	}
}

func TestLevels(t *testing.T) {
	if rms := RMS([]float64{1, -1, 1, -1}); rms != 1 {
		t.Errorf("expected RMS 1, got %f", rms)
	}
	if db := DBFS([]float32{0.5, -0.5}); math.Abs(db-(-6.0206)) > 1e-3 {
		t.Errorf("expected -6.02 dBFS, got %f", db)
	}
	if db := DBFS([]float64{}); db != SilenceDBFS {
		t.Errorf("expected silence, got %f", db)
	}
}
