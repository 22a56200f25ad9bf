// ABOUTME: Adaptive playout engine with pre-buffering state machine
// ABOUTME: Conditions each rendered sample with squelch, AGC and volume
package playout

import (
	"errors"
	"fmt"
	"math"

	"github.com/h1sdr/websdr-go/pkg/dsp"
)

var (
	// ErrNotConfigured is returned by Start and Write before Configure
	ErrNotConfigured = errors.New("playout engine not configured")
	// ErrInvalidConfig wraps Config validation failures
	ErrInvalidConfig = errors.New("invalid playout config")
)

// State is the engine's playback state
type State int

const (
	Idle State = iota
	PreBuffering
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PreBuffering:
		return "buffering"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reference buffer sizing
const (
	DefaultSampleRate          = 48000
	DefaultCapacitySeconds     = 10.0
	DefaultMinPrebufferSeconds = 2.0
	DefaultOptimalSeconds      = 4.0
	DefaultMaxPrebufferSeconds = 6.0
	DefaultLowBufferRatio      = 0.75
)

// AGC target bounds
const (
	MinAGCTarget = 0.01
	MaxAGCTarget = 1.0
)

// Config holds engine parameters. Zero fields take the defaults above.
type Config struct {
	SampleRate          int
	CapacitySeconds     float64
	MinPrebufferSeconds float64
	OptimalSeconds      float64
	MaxPrebufferSeconds float64
	LowBufferRatio      float64

	// Volume zero means full scale; call SetVolume(0) to mute.
	Volume     float64
	Squelch    float64
	DisableAGC bool
	AGCTarget  float64
	Attack     float64
	Release    float64
}

// DefaultConfig returns the reference configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:          DefaultSampleRate,
		CapacitySeconds:     DefaultCapacitySeconds,
		MinPrebufferSeconds: DefaultMinPrebufferSeconds,
		OptimalSeconds:      DefaultOptimalSeconds,
		MaxPrebufferSeconds: DefaultMaxPrebufferSeconds,
		LowBufferRatio:      DefaultLowBufferRatio,
		Volume:              1,
		AGCTarget:           dsp.DefaultTarget,
		Attack:              dsp.DefaultAttack,
		Release:             dsp.DefaultRelease,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.CapacitySeconds == 0 {
		c.CapacitySeconds = d.CapacitySeconds
	}
	if c.MinPrebufferSeconds == 0 {
		c.MinPrebufferSeconds = d.MinPrebufferSeconds
	}
	if c.OptimalSeconds == 0 {
		c.OptimalSeconds = d.OptimalSeconds
	}
	if c.MaxPrebufferSeconds == 0 {
		c.MaxPrebufferSeconds = d.MaxPrebufferSeconds
	}
	if c.LowBufferRatio == 0 {
		c.LowBufferRatio = d.LowBufferRatio
	}
	if c.Volume == 0 {
		c.Volume = d.Volume
	}
	if c.AGCTarget == 0 {
		c.AGCTarget = d.AGCTarget
	}
	if c.Attack == 0 {
		c.Attack = d.Attack
	}
	if c.Release == 0 {
		c.Release = d.Release
	}
	return c
}

// Validate rejects sizes the engine cannot work with
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.CapacitySeconds <= 0:
		return fmt.Errorf("%w: capacity %.2fs", ErrInvalidConfig, c.CapacitySeconds)
	case c.MinPrebufferSeconds < 0 || c.OptimalSeconds < 0 || c.MaxPrebufferSeconds < 0:
		return fmt.Errorf("%w: negative pre-buffer level", ErrInvalidConfig)
	case c.MinPrebufferSeconds > c.OptimalSeconds:
		return fmt.Errorf("%w: min pre-buffer %.2fs above optimal %.2fs", ErrInvalidConfig, c.MinPrebufferSeconds, c.OptimalSeconds)
	case c.LowBufferRatio < 0 || c.LowBufferRatio > 1:
		return fmt.Errorf("%w: low buffer ratio %.2f", ErrInvalidConfig, c.LowBufferRatio)
	case c.Attack <= 0 || c.Attack >= 1 || c.Release <= 0:
		return fmt.Errorf("%w: attack %.4f release %.4f", ErrInvalidConfig, c.Attack, c.Release)
	}
	return nil
}

// Stats is a snapshot of engine counters and parameters. Dropped counts
// every sample lost before rendering; Rejected is the share refused by a
// full Node inbox.
type Stats struct {
	State           State
	SampleRate      int
	Fill            int
	Capacity        int
	Underruns       uint64
	Overflows       uint64
	Dropped         uint64
	Rejected        uint64
	SamplesWritten  uint64
	SamplesRendered uint64
	Gain            float64
	Volume          float64
	Squelch         float64
	AGCEnabled      bool
	AGCTarget       float64
}

// FillSeconds returns the buffered duration
func (s Stats) FillSeconds() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.Fill) / float64(s.SampleRate)
}

// Engine is the jitter buffer and conditioning chain for one audio stream
type Engine struct {
	cfg        Config
	buf        *Buffer
	state      State
	sampleRate int

	minLevel   int
	startLevel int
	lowLevel   int

	gain    dsp.GainState
	agc     bool
	volume  float64
	squelch float64

	underruns uint64
	overflows uint64
	written   uint64
	rendered  uint64

	emit func(Event)
}

// NewEngine creates an unconfigured engine. Call Configure before Start.
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:  cfg,
		emit: func(Event) {},
		gain: dsp.GainState{Gain: 1, Attack: cfg.Attack, Release: cfg.Release, Target: clampTarget(cfg.AGCTarget)},
		agc:  !cfg.DisableAGC,
	}
	e.SetVolume(cfg.Volume)
	e.SetSquelch(cfg.Squelch)
	return e, nil
}

// OnEvent installs the event sink. The sink runs on the rendering goroutine
// and must not block.
func (e *Engine) OnEvent(fn func(Event)) {
	if fn == nil {
		fn = func(Event) {}
	}
	e.emit = fn
}

// Configure sizes the buffer for sampleRate*capacitySeconds samples and
// returns the engine to Idle. Non-positive arguments keep the configured
// defaults.
func (e *Engine) Configure(sampleRate int, capacitySeconds float64) error {
	if sampleRate <= 0 {
		sampleRate = e.cfg.SampleRate
	}
	if capacitySeconds <= 0 {
		capacitySeconds = e.cfg.CapacitySeconds
	}

	capacity := int(math.Round(float64(sampleRate) * capacitySeconds))
	if capacity < 1 {
		return fmt.Errorf("%w: capacity of %d samples", ErrInvalidConfig, capacity)
	}

	e.buf = NewBuffer(capacity)
	e.sampleRate = sampleRate
	e.minLevel = e.seconds(e.cfg.MinPrebufferSeconds)
	e.startLevel = e.seconds(math.Min(e.cfg.OptimalSeconds, e.cfg.MaxPrebufferSeconds))
	e.lowLevel = int(float64(e.minLevel) * e.cfg.LowBufferRatio)
	e.gain.Reset()
	e.setState(Idle)
	return nil
}

func (e *Engine) seconds(s float64) int {
	n := int(math.Round(float64(e.sampleRate) * s))
	if n > e.buf.Capacity() {
		return e.buf.Capacity()
	}
	return n
}

// Configured reports whether Configure has been called
func (e *Engine) Configured() bool { return e.buf != nil }

// Start empties the buffer and begins pre-buffering
func (e *Engine) Start() error {
	if e.buf == nil {
		return ErrNotConfigured
	}
	e.buf.Reset()
	e.gain.Reset()
	e.setState(PreBuffering)
	return nil
}

// Stop clears the buffer and returns to Idle. Safe in any state.
func (e *Engine) Stop() {
	if e.buf != nil {
		e.buf.Reset()
	}
	e.setState(Idle)
}

// Write appends samples, discarding the oldest on overflow. The first write
// that lifts the fill to the start level while pre-buffering starts playback.
func (e *Engine) Write(samples []float32) error {
	if e.buf == nil {
		return ErrNotConfigured
	}
	if dropped := e.buf.Write(samples); dropped > 0 {
		e.overflows++
		e.emit(Overflow{Dropped: dropped})
	}
	e.written += uint64(len(samples))

	if e.state == PreBuffering && e.buf.Fill() >= e.startLevel {
		fill := e.buf.Fill()
		e.setState(Playing)
		e.emit(StartedPlaying{Fill: fill, Healthy: fill >= e.minLevel})
	}
	return nil
}

// Render returns n conditioned samples
func (e *Engine) Render(n int) []float32 {
	out := make([]float32, n)
	e.RenderInto(out)
	return out
}

// RenderInto fills dst with the next len(dst) conditioned samples, or with
// silence when not playing or when the buffer cannot supply a whole block.
func (e *Engine) RenderInto(dst []float32) {
	n := len(dst)
	if e.state != Playing {
		zero(dst)
		return
	}

	fill := e.buf.Fill()
	if fill < n {
		zero(dst)
		e.underruns++
		e.setState(PreBuffering)
		e.emit(Underrun{Fill: fill, Required: e.minLevel})
		return
	}

	e.buf.Read(dst)
	for i, s := range dst {
		dst[i] = e.condition(s)
	}
	e.rendered += uint64(n)

	if fill = e.buf.Fill(); fill < e.lowLevel {
		e.setState(PreBuffering)
		e.emit(LowBuffer{Fill: fill, Required: e.minLevel})
	}
}

func (e *Engine) condition(s float32) float32 {
	v := float64(s)
	if math.Abs(v) < e.squelch {
		v = 0
	}
	if e.agc {
		v = e.gain.Process(v)
	}
	return float32(v * e.volume)
}

// SetVolume sets the output scale, clamped to [0, 1]
func (e *Engine) SetVolume(v float64) {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	e.volume = v
}

// SetSquelch sets the mute gate threshold, clamped to [0, 1]. Zero disables
// the gate.
func (e *Engine) SetSquelch(threshold float64) {
	switch {
	case math.IsNaN(threshold) || threshold < 0:
		threshold = 0
	case threshold > 1:
		threshold = 1
	}
	e.squelch = threshold
}

// SetAGC enables or disables gain control and sets its target level,
// clamped to [0.01, 1]
func (e *Engine) SetAGC(enabled bool, target float64) {
	e.agc = enabled
	e.gain.Target = clampTarget(target)
}

func clampTarget(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return dsp.DefaultTarget
	case t < MinAGCTarget:
		return MinAGCTarget
	case t > MaxAGCTarget:
		return MaxAGCTarget
	}
	return t
}

// State returns the current playback state
func (e *Engine) State() State { return e.state }

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	s := Stats{
		State:           e.state,
		SampleRate:      e.sampleRate,
		Underruns:       e.underruns,
		Overflows:       e.overflows,
		SamplesWritten:  e.written,
		SamplesRendered: e.rendered,
		Gain:            e.gain.Gain,
		Volume:          e.volume,
		Squelch:         e.squelch,
		AGCEnabled:      e.agc,
		AGCTarget:       e.gain.Target,
	}
	if e.buf != nil {
		s.Fill = e.buf.Fill()
		s.Capacity = e.buf.Capacity()
		s.Dropped = e.buf.Dropped()
	}
	return s
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	from := e.state
	e.state = s
	e.emit(StateChanged{From: from, To: s})
}

func zero(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
}
