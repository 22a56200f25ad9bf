// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and float/integer sample conversion functions
// Package audio provides the sample format helpers shared by the playout
// path, the device outputs and the WAV recorder.
//
// Samples travel through the client as mono float32 in [-1, 1]. Devices and
// files want integers or little-endian bytes, so this package converts:
//   - float32 ↔ int16 with clipping
//   - float32 → signed integers of any bit depth
//   - float32 → packed little-endian bytes
//
// Example:
//
//	format := audio.Format{SampleRate: 48000, Channels: 1}
//	pcm := audio.FloatToInt16(0.5)
package audio
