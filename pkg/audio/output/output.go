// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-based playback backends
package output

// Source renders the next len(out) mono samples. It is called from the
// output's playback goroutine and must not block.
type Source interface {
	Process(out []float32)
}

// Output represents an audio output device
type Output interface {
	// Open starts pulling mono audio from src at sampleRate, duplicated
	// across channels
	Open(sampleRate, channels int, src Source) error

	// Close stops playback and releases output resources
	Close() error
}
