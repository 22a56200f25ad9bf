// ABOUTME: Tests for window functions
// ABOUTME: Checks endpoints, symmetry and special lengths
package dsp

import (
	"math"
	"testing"
)

func TestWindowEndpoints(t *testing.T) {
	tests := []struct {
		kind WindowKind
		edge float64
		peak float64
	}{
		{Rectangular, 1, 1},
		{Hann, 0, 1},
		{Hamming, 0.08, 1},
		{Blackman, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			w := Window(tt.kind, 9)
			if len(w) != 9 {
				t.Fatalf("expected 9 coefficients, got %d", len(w))
			}
			if math.Abs(w[0]-tt.edge) > 1e-9 || math.Abs(w[8]-tt.edge) > 1e-9 {
				t.Errorf("expected edges %f, got %f/%f", tt.edge, w[0], w[8])
			}
			if math.Abs(w[4]-tt.peak) > 1e-9 {
				t.Errorf("expected centre %f, got %f", tt.peak, w[4])
			}
			for i := 0; i < 4; i++ {
				if math.Abs(w[i]-w[8-i]) > 1e-12 {
					t.Errorf("window not symmetric at %d: %f vs %f", i, w[i], w[8-i])
				}
			}
		})
	}
}

func TestWindowSpecialLengths(t *testing.T) {
	if w := Window(Hann, 0); len(w) != 0 {
		t.Errorf("expected empty window, got %v", w)
	}
	if w := Window(Blackman, 1); len(w) != 1 || w[0] != 1 {
		t.Errorf("expected [1], got %v", w)
	}
}

func TestApplyWindow(t *testing.T) {
	samples := []float32{2, 2, 2}
	ApplyWindow(samples, Window(Hann, 3))
	want := []float32{0, 2, 0}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], samples[i])
		}
	}
}

func TestParseWindowKind(t *testing.T) {
	for _, k := range []WindowKind{Rectangular, Hann, Hamming, Blackman} {
		got, err := ParseWindowKind(k.String())
		if err != nil || got != k {
			t.Errorf("expected %s, got %s (%v)", k, got, err)
		}
	}
	if _, err := ParseWindowKind("kaiser"); err == nil {
		t.Error("expected error for unknown window")
	}
}
