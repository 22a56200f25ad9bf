// Package playout implements the adaptive jitter buffer between the network
// and the audio device.
//
// An Engine owns a fixed-capacity sample ring, a three-state machine
// (Idle, PreBuffering, Playing) and the per-sample conditioning chain
// (squelch gate, AGC, volume). It is not safe for concurrent use: exactly
// one goroutine, the audio rendering goroutine, drives it.
//
// Node wraps an Engine for use across goroutines. Producers Post commands
// into a bounded inbox; the rendering goroutine calls Process, which drains
// the inbox without blocking and then renders a block. Events travel back on
// a separate buffered channel. Neither side ever waits on the other.
package playout
