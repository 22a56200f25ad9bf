// ABOUTME: WAV recorder that taps decoded audio frames
// ABOUTME: Writes 16-bit mono PCM through go-audio/wav
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	sdraudio "github.com/h1sdr/websdr-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned once the recorder has been closed
var ErrClosed = errors.New("recorder closed")

const (
	bitDepth      = 16
	wavFormatPCM  = 1
	recordChannel = 1
)

// Recorder appends every sample it is handed to a WAV stream. It is safe
// for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	enc        *wav.Encoder
	file       io.Closer
	buf        *audio.IntBuffer
	sampleRate int
	samples    uint64
	err        error
	closed     bool
	log        logrus.FieldLogger
}

// Create opens path for writing and returns a recorder for mono audio at sampleRate
func Create(path string, sampleRate int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	r := New(f, sampleRate)
	r.file = f
	r.log = r.log.WithField("path", path)
	return r, nil
}

// New records into ws. The header is finalized by Close, which needs to seek.
func New(ws io.WriteSeeker, sampleRate int) *Recorder {
	return &Recorder{
		enc:        wav.NewEncoder(ws, sampleRate, bitDepth, recordChannel, wavFormatPCM),
		sampleRate: sampleRate,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: recordChannel, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		log: logrus.StandardLogger().WithField("component", "record"),
	}
}

// SetLogger replaces the default logger
func (r *Recorder) SetLogger(log logrus.FieldLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log.WithField("component", "record")
}

// AddData converts samples to 16-bit PCM and appends them. The first write
// error is kept and later calls become no-ops.
func (r *Recorder) AddData(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.err != nil || len(samples) == 0 {
		return
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(sdraudio.FloatToInt16(s))
	}

	if err := r.enc.Write(r.buf); err != nil {
		r.err = fmt.Errorf("write recording: %w", err)
		r.log.WithError(err).Error("Recording stopped")
		return
	}
	r.samples += uint64(len(samples))
}

// Duration returns the length of audio recorded so far
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sdraudio.Format{SampleRate: r.sampleRate, Channels: recordChannel}.Duration(int(r.samples))
}

// Err returns the first write error, if any
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close finalizes the WAV header and closes the underlying file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.closed = true

	err := r.enc.Close()
	if r.file != nil {
		if cerr := r.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("finalize recording: %w", err)
	}
	r.log.WithField("samples", r.samples).Info("Recording finalized")
	return nil
}
