// ABOUTME: Audio type definitions
// ABOUTME: Defines the stream format and float sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// 16-bit audio range constants
	Max16Bit = 32767
	Min16Bit = -32768
)

// Format describes a PCM stream
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// Duration returns how long n frames last in this format
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Frames returns the number of frames that fit into d
func (f Format) Frames(d time.Duration) int {
	return int(int64(d) * int64(f.SampleRate) / int64(time.Second))
}

// Clip limits a sample to [-1, 1]. NaN becomes silence.
func Clip(s float32) float32 {
	switch {
	case s != s:
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// FloatToInt16 converts a float sample to 16-bit PCM with clipping
func FloatToInt16(s float32) int16 {
	return int16(FloatToInt(s, 16))
}

// Int16ToFloat converts 16-bit PCM to a float sample in [-1, 1)
func Int16ToFloat(s int16) float32 {
	return float32(s) / 32768
}

// FloatToInt scales a float sample to a signed integer of the given bit depth
func FloatToInt(s float32, bitDepth int) int {
	max := float64(int64(1)<<uint(bitDepth-1)) - 1
	v := math.Round(float64(Clip(s)) * max)
	return int(v)
}

// PutFloat32LE packs samples as little-endian IEEE 754 into dst, which must
// hold 4*len(samples) bytes
func PutFloat32LE(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
