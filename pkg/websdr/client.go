// ABOUTME: WebSDR client tying transport channels to the playout node
// ABOUTME: Dispatches frames, issues receiver commands and relays statistics
package websdr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/h1sdr/websdr-go/pkg/playout"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/h1sdr/websdr-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoServer is returned by New when Config.ServerAddr is empty
	ErrNoServer = errors.New("server address is required")
	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("client closed")
	// ErrInvalidCommand wraps receiver commands rejected before sending
	ErrInvalidCommand = errors.New("invalid command")
	// ErrNoControl is returned by receiver commands when the control channel is disabled
	ErrNoControl = errors.New("control channel not enabled")
)

// DefaultStatsInterval is how often playout statistics are requested
const DefaultStatsInterval = 100 * time.Millisecond

// Tap receives every decoded audio frame before it enters the playout
// buffer. Taps run on the audio channel's reader goroutine and must not
// retain or modify the slice.
type Tap interface {
	AddData(samples []float32)
}

// Config holds client configuration
type Config struct {
	// ServerAddr is host:port of the WebSDR server
	ServerAddr string
	// Secure selects wss instead of ws
	Secure bool
	// Paths overrides the websocket path per channel
	Paths map[protocol.ChannelKind]string
	// Channels to open, all four by default
	Channels []protocol.ChannelKind
	// Header is sent with every handshake
	Header http.Header

	Playout       playout.Config
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	MaxQueueSize  int
	StatsInterval time.Duration

	Taps []Tap

	// Frame and control callbacks run on the channel reader goroutines
	OnSpectrum  func(protocol.SpectrumFrame)
	OnWaterfall func(protocol.WaterfallFrame)
	OnControl   func(protocol.ChannelKind, protocol.ControlMessage)
	OnStatus    func(transport.Status)

	// Event and stats callbacks run on the client loop started by Start
	OnEvent func(playout.Event)
	OnStats func(Stats)

	Logger logrus.FieldLogger
	Dialer transport.Dialer
}

// ChannelStats describes one transport channel
type ChannelStats struct {
	State        transport.State
	Queued       int
	Dropped      uint64
	DecodeErrors uint64
	Frames       uint64
	ClientID     string
}

// Stats is a client snapshot
type Stats struct {
	SessionID       string
	Playout         playout.Stats
	Channels        map[protocol.ChannelKind]ChannelStats
	StreamRate      int
	RateChanges     int
	RejectedWrites  uint64
	DroppedEvents   uint64
}

// Client is a connection to one WebSDR server
type Client struct {
	cfg Config
	log logrus.FieldLogger
	id  string

	node     *playout.Node
	channels map[protocol.ChannelKind]*transport.Channel
	frames   map[protocol.ChannelKind]*atomic.Uint64

	// streamRate is only touched by the audio reader goroutine
	streamRate int

	mu          sync.Mutex
	started     bool
	closed      bool
	audioActive bool
	last        playout.Stats
	clientIDs   map[protocol.ChannelKind]string
	rateChanges int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a client with a configured playout engine and disconnected
// channels. Call Start to connect.
func New(cfg Config) (*Client, error) {
	if cfg.ServerAddr == "" {
		return nil, ErrNoServer
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = protocol.AllChannels
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	engine, err := playout.NewEngine(cfg.Playout)
	if err != nil {
		return nil, fmt.Errorf("playout: %w", err)
	}
	if err := engine.Configure(0, 0); err != nil {
		return nil, fmt.Errorf("playout: %w", err)
	}
	rate := engine.Stats().SampleRate

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		log:        cfg.Logger.WithField("session", id),
		id:         id,
		node:       playout.NewNode(engine, 0, 0),
		channels:   make(map[protocol.ChannelKind]*transport.Channel),
		frames:     make(map[protocol.ChannelKind]*atomic.Uint64),
		streamRate: rate,
		last:       engine.Stats(),
		clientIDs:  make(map[protocol.ChannelKind]string),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	for _, kind := range cfg.Channels {
		ch, err := transport.NewChannel(transport.Config{
			URL:          c.channelURL(kind),
			Kind:         kind,
			Header:       cfg.Header,
			BackoffBase:  cfg.BackoffBase,
			BackoffMax:   cfg.BackoffMax,
			MaxQueueSize: cfg.MaxQueueSize,
			Dialer:       cfg.Dialer,
			Logger:       c.log,
			OnFrame:      c.handleFrame,
			OnControl: func(msg protocol.ControlMessage) {
				c.handleControl(kind, msg)
			},
			OnStatus: c.handleStatus,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("channel %s: %w", kind, err)
		}
		c.channels[kind] = ch
		c.frames[kind] = new(atomic.Uint64)
	}

	return c, nil
}

func (c *Client) channelURL(kind protocol.ChannelKind) string {
	scheme := "ws"
	if c.cfg.Secure {
		scheme = "wss"
	}
	path, ok := c.cfg.Paths[kind]
	if !ok || path == "" {
		path = kind.Path()
	}
	u := url.URL{Scheme: scheme, Host: c.cfg.ServerAddr, Path: path}
	return u.String()
}

// SessionID identifies this client instance in logs
func (c *Client) SessionID() string { return c.id }

// Source returns the playout node for the output device to pull from
func (c *Client) Source() *playout.Node { return c.node }

// Start connects every channel and runs the event and statistics loop until
// ctx is cancelled or Close is called. Cancelling ctx closes the client.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	go c.loop(ctx)
	for _, kind := range c.cfg.Channels {
		if err := c.channels[kind].Connect(); err != nil {
			return fmt.Errorf("connect %s: %w", kind, err)
		}
	}

	c.log.WithFields(logrus.Fields{
		"server":   c.cfg.ServerAddr,
		"channels": len(c.channels),
	}).Info("Client started")
	return nil
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.node.Post(playout.GetStats{})
		case ev := <-c.node.Events():
			c.handleEvent(ev)
		}
	}
}

// Done is closed when the loop started by Start has exited
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) handleFrame(frame protocol.Frame) {
	c.frames[frame.Channel()].Add(1)

	switch f := frame.(type) {
	case protocol.AudioFrame:
		c.handleAudio(f)
	case protocol.SpectrumFrame:
		if c.cfg.OnSpectrum != nil {
			c.cfg.OnSpectrum(f)
		}
	case protocol.WaterfallFrame:
		if c.cfg.OnWaterfall != nil {
			c.cfg.OnWaterfall(f)
		}
	}
}

func (c *Client) handleAudio(f protocol.AudioFrame) {
	for _, tap := range c.cfg.Taps {
		tap.AddData(f.Samples)
	}

	if rate := int(math.Round(float64(f.SampleRate))); rate > 0 && rate != c.streamRate {
		c.log.WithFields(logrus.Fields{
			"from": c.streamRate,
			"to":   rate,
		}).Warn("Audio sample rate changed, reconfiguring playout")
		c.streamRate = rate
		c.node.Post(playout.Configure{SampleRate: rate, CapacitySeconds: c.cfg.Playout.CapacitySeconds})

		c.mu.Lock()
		active := c.audioActive
		c.rateChanges++
		c.mu.Unlock()
		if active {
			c.node.Post(playout.Start{})
		}
	}

	if !c.node.Post(playout.Write{Samples: f.Samples}) {
		c.log.WithField("samples", len(f.Samples)).Debug("Playout inbox full, dropping audio frame")
	}
}

func (c *Client) handleControl(kind protocol.ChannelKind, msg protocol.ControlMessage) {
	switch m := msg.(type) {
	case protocol.ConnectionStatus:
		c.mu.Lock()
		c.clientIDs[kind] = string(m.ClientID)
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{
			"channel":   kind.String(),
			"client_id": string(m.ClientID),
			"status":    m.Status,
		}).Info("Server accepted channel")
	case protocol.ServerError:
		c.log.WithFields(logrus.Fields{
			"channel":    kind.String(),
			"error_type": m.ErrorType,
		}).Warnf("Server error: %s", m.Message)
	case protocol.ServerDisconnect:
		c.log.WithField("channel", kind.String()).Infof("Server disconnecting: %s", m.Message)
	}

	if c.cfg.OnControl != nil {
		c.cfg.OnControl(kind, msg)
	}
}

func (c *Client) handleStatus(st transport.Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(st)
	}
}

func (c *Client) handleEvent(ev playout.Event) {
	switch e := ev.(type) {
	case playout.StatsReport:
		c.mu.Lock()
		c.last = e.Stats
		c.mu.Unlock()
		if c.cfg.OnStats != nil {
			c.cfg.OnStats(c.Stats())
		}
	case playout.StateChanged:
		c.log.WithFields(logrus.Fields{
			"from": e.From.String(),
			"to":   e.To.String(),
		}).Info("Playout state")
	case playout.StartedPlaying:
		c.log.WithFields(logrus.Fields{
			"fill":    e.Fill,
			"healthy": e.Healthy,
		}).Info("Playback started")
	case playout.Underrun:
		c.log.WithFields(logrus.Fields{
			"fill":     e.Fill,
			"required": e.Required,
		}).Warn("Buffer underrun")
	case playout.Overflow:
		c.log.WithField("dropped", e.Dropped).Debug("Buffer overflow")
	case playout.CommandFailed:
		c.log.WithError(e.Err).WithField("command", fmt.Sprintf("%T", e.Command)).Warn("Playout command failed")
	}

	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(ev)
	}
}

// StartAudio begins pre-buffering and playback
func (c *Client) StartAudio() {
	c.mu.Lock()
	c.audioActive = true
	c.mu.Unlock()
	c.node.Post(playout.Start{})
}

// StopAudio stops playback and clears the buffer
func (c *Client) StopAudio() {
	c.mu.Lock()
	c.audioActive = false
	c.mu.Unlock()
	c.node.Post(playout.Stop{})
}

// SetVolume sets the output scale, clamped to [0, 1]
func (c *Client) SetVolume(v float64) {
	c.node.Post(playout.SetVolume{Volume: v})
}

// SetSquelch sets the mute threshold, clamped to [0, 1]
func (c *Client) SetSquelch(threshold float64) {
	c.node.Post(playout.SetSquelch{Threshold: threshold})
}

// SetAGC toggles automatic gain control and sets its target level
func (c *Client) SetAGC(enabled bool, target float64) {
	c.node.Post(playout.SetAGC{Enabled: enabled, Target: target})
}

// StartSDR starts the receiver with cfg. The gain is clamped to the tuner range.
func (c *Client) StartSDR(cfg protocol.SDRConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	cfg.Gain = protocol.ClampGain(cfg.Gain)
	return c.control(protocol.SDRControl{Action: protocol.ActionStart, Config: &cfg})
}

// StopSDR stops the receiver
func (c *Client) StopSDR() error {
	return c.control(protocol.SDRControl{Action: protocol.ActionStop})
}

// Tune retunes the receiver to freq Hz
func (c *Client) Tune(freq float64) error {
	if freq <= 0 || freq > protocol.MaxFrequency || math.IsNaN(freq) {
		return fmt.Errorf("%w: frequency %.0f Hz out of range", ErrInvalidCommand, freq)
	}
	return c.control(protocol.SDRControl{Action: protocol.ActionSetFrequency, Frequency: freq})
}

// SetGain sets the tuner gain in dB, clamped to [0, MaxGain]
func (c *Client) SetGain(gain float64) error {
	g := protocol.ClampGain(gain)
	return c.control(protocol.SDRControl{Action: protocol.ActionSetGain, Gain: &g})
}

// SetDemod selects the demodulator. A zero bandwidth keeps the current one.
func (c *Client) SetDemod(mode string, bandwidth int) error {
	m, err := protocol.NormalizeDemodMode(mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if bandwidth < 0 || bandwidth > protocol.MaxBandwidth {
		return fmt.Errorf("%w: bandwidth %d out of range [0, %d]", ErrInvalidCommand, bandwidth, protocol.MaxBandwidth)
	}
	return c.control(protocol.DemodControl{Mode: m, Bandwidth: bandwidth})
}

// Ping sends a keepalive with the current time
func (c *Client) Ping() error {
	now := time.Now()
	return c.control(protocol.Ping{Timestamp: float64(now.UnixNano()) / 1e9})
}

// control sends msg on the control channel, queueing it while disconnected
func (c *Client) control(msg protocol.ControlMessage) error {
	ch, ok := c.channels[protocol.ChannelControl]
	if !ok {
		return ErrNoControl
	}
	return ch.SendMessage(msg)
}

// Stats returns the latest playout report and the current channel states
func (c *Client) Stats() Stats {
	c.mu.Lock()
	st := Stats{
		SessionID:       c.id,
		Playout:         c.last,
		Channels:        make(map[protocol.ChannelKind]ChannelStats, len(c.channels)),
		RejectedWrites:  c.node.RejectedWrites(),
		RateChanges:     c.rateChanges,
		DroppedEvents:   c.node.DroppedEvents(),
	}
	ids := make(map[protocol.ChannelKind]string, len(c.clientIDs))
	for k, v := range c.clientIDs {
		ids[k] = v
	}
	c.mu.Unlock()

	st.StreamRate = st.Playout.SampleRate
	for kind, ch := range c.channels {
		st.Channels[kind] = ChannelStats{
			State:        ch.State(),
			Queued:       ch.Queued(),
			Dropped:      ch.Dropped(),
			DecodeErrors: ch.DecodeErrors(),
			Frames:       c.frames[kind].Load(),
			ClientID:     ids[kind],
		}
	}
	return st
}

// Close disconnects every channel and silences playback. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.audioActive = false
	c.mu.Unlock()

	c.cancel()
	c.node.Post(playout.Stop{})

	var errs []error
	for _, ch := range c.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if !started {
		close(c.done)
	}

	c.log.Info("Client closed")
	return errors.Join(errs...)
}
