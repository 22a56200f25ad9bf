// ABOUTME: Oto-based audio output implementation
// ABOUTME: The oto player pulls float32 blocks from the source through an io.Reader
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/h1sdr/websdr-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// DefaultDeviceBuffer is the latency oto is asked to keep queued
const DefaultDeviceBuffer = 50 * time.Millisecond

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	reader     *sourceReader
	sampleRate int
	channels   int
	bufferTime time.Duration
	log        logrus.FieldLogger
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{
		bufferTime: DefaultDeviceBuffer,
		log:        logrus.StandardLogger().WithField("component", "oto"),
	}
}

// SetLogger replaces the default logger
func (o *Oto) SetLogger(log logrus.FieldLogger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log = log.WithField("component", "oto")
}

// Open initializes the output device and starts pulling from src
func (o *Oto) Open(sampleRate, channels int, src Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if channels < 1 {
		channels = 1
	}

	// oto allows one context per process; a format change keeps the old one
	if o.otoCtx != nil {
		if o.sampleRate != sampleRate || o.channels != channels {
			o.log.Warnf("Format change %s -> %s ignored, oto cannot reinitialize",
				o.format(), audio.Format{SampleRate: sampleRate, Channels: channels})
		}
		o.startPlayer(src)
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.bufferTime,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	o.startPlayer(src)

	o.log.Infof("Audio output initialized: %s", o.format())
	return nil
}

func (o *Oto) startPlayer(src Source) {
	if o.player != nil {
		o.player.Close()
	}
	o.reader = newSourceReader(src, o.channels)
	o.player = o.otoCtx.NewPlayer(o.reader)
	o.player.SetBufferSize(o.format().Frames(o.bufferTime) * o.channels * 4)
	o.player.Play()
}

func (o *Oto) format() audio.Format {
	return audio.Format{SampleRate: o.sampleRate, Channels: o.channels}
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	if o.player != nil {
		err = o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		if serr := o.otoCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// sourceReader adapts a Source to the io.Reader oto pulls from
type sourceReader struct {
	src      Source
	channels int
	block    []float32
	frame    []float32
}

func newSourceReader(src Source, channels int) *sourceReader {
	return &sourceReader{src: src, channels: channels}
}

// Read renders as many whole frames as fit into p, clipped to [-1, 1]
func (r *sourceReader) Read(p []byte) (int, error) {
	frameBytes := 4 * r.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	if cap(r.block) < frames {
		r.block = make([]float32, frames)
		r.frame = make([]float32, frames*r.channels)
	}
	block := r.block[:frames]
	r.src.Process(block)
	for i, s := range block {
		block[i] = audio.Clip(s)
	}

	out := block
	if r.channels > 1 {
		out = r.frame[:frames*r.channels]
		for i, s := range block {
			for c := 0; c < r.channels; c++ {
				out[i*r.channels+c] = s
			}
		}
	}
	audio.PutFloat32LE(p, out)
	return frames * frameBytes, nil
}
