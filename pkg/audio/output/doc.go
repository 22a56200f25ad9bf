// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the pull-based Output interface with oto and clock backends
// Package output drives a Source from an audio device.
//
// Outputs pull: the device (or a ticker, for headless runs) asks the Source
// for the next block whenever it needs one, so playback timing is set by the
// device and never by the network.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(48000, 1, client.Source())
//	defer out.Close()
package output
