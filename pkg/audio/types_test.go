// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion functions
package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestFloatToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full scale", 1, Max16Bit},
		{"clipped high", 3, Max16Bit},
		{"clipped low", -3, -Max16Bit},
		{"nan", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FloatToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestInt16ToFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"min", Min16Bit, -1},
		{"half", 16384, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Int16ToFloat(tt.input)
			if result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestFloatToIntBitDepth(t *testing.T) {
	if v := FloatToInt(1, 24); v != 8388607 {
		t.Errorf("expected 24-bit full scale 8388607, got %d", v)
	}
	if v := FloatToInt(-1, 8); v != -127 {
		t.Errorf("expected 8-bit -127, got %d", v)
	}
}

func TestPutFloat32LE(t *testing.T) {
	buf := make([]byte, 8)
	PutFloat32LE(buf, []float32{0.25, -1})

	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])); got != 0.25 {
		t.Errorf("expected 0.25, got %f", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])); got != -1 {
		t.Errorf("expected -1, got %f", got)
	}
}

func TestFormatDuration(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 1}
	if d := f.Duration(4800); d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", d)
	}
	if n := f.Frames(20 * time.Millisecond); n != 960 {
		t.Errorf("expected 960 frames, got %d", n)
	}
	if s := f.String(); s != "48000Hz 1ch" {
		t.Errorf("unexpected format string %q", s)
	}
}
