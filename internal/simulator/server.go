// ABOUTME: Synthetic WebSDR server for development and tests
// ABOUTME: Streams spectrum, waterfall and audio frames and answers control messages
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Defaults for the synthetic receiver
const (
	DefaultSampleRate       = 48000
	DefaultAudioBlock       = 100 * time.Millisecond
	DefaultSpectrumInterval = 100 * time.Millisecond
	DefaultFFTSize          = 1024
	DefaultRFSampleRate     = 2.4e6
	DefaultFrequency        = 100e6
	DefaultGain             = 40.0
	DefaultToneFrequency    = 1000.0
	DefaultPingInterval     = 10 * time.Second
	clientSendBuffer        = 64
)

// Config holds simulator configuration
type Config struct {
	SampleRate       int
	AudioBlock       time.Duration
	SpectrumInterval time.Duration
	FFTSize          int
	RFSampleRate     float64
	Frequency        float64
	ToneFrequency    float64
	PingInterval     time.Duration
	Logger           logrus.FieldLogger
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.AudioBlock <= 0 {
		c.AudioBlock = DefaultAudioBlock
	}
	if c.SpectrumInterval <= 0 {
		c.SpectrumInterval = DefaultSpectrumInterval
	}
	if c.FFTSize <= 0 {
		c.FFTSize = DefaultFFTSize
	}
	if c.RFSampleRate <= 0 {
		c.RFSampleRate = DefaultRFSampleRate
	}
	if c.Frequency <= 0 {
		c.Frequency = DefaultFrequency
	}
	if c.ToneFrequency <= 0 {
		c.ToneFrequency = DefaultToneFrequency
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// ReceiverState is reported in every status_update
type ReceiverState struct {
	Running       bool    `json:"running"`
	Frequency     float64 `json:"frequency"`
	Gain          float64 `json:"gain"`
	SampleRate    float64 `json:"sample_rate"`
	DeviceIndex   int     `json:"device_index"`
	Mode          string  `json:"mode"`
	Bandwidth     int     `json:"bandwidth"`
	Clients       int     `json:"clients"`
	FramesSent    uint64  `json:"frames_sent"`
	FramesDropped uint64  `json:"frames_dropped"`
}

// Server is the simulated receiver
type Server struct {
	cfg      Config
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	start    time.Time

	mu       sync.Mutex
	clients  map[string]*client
	state    ReceiverState
	shutdown bool

	tone     *toneSource
	spectrum *spectrumSource
}

// client is one accepted channel connection
type client struct {
	id   string
	kind protocol.ChannelKind
	conn *websocket.Conn
	send chan protocol.Payload
	done chan struct{}
	once sync.Once
}

// New creates a simulator. Call Run to start streaming.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg: cfg,
		log: cfg.Logger.WithField("component", "simulator"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		start:   time.Now(),
		clients: make(map[string]*client),
		state: ReceiverState{
			Frequency:  cfg.Frequency,
			Gain:       DefaultGain,
			SampleRate: cfg.RFSampleRate,
			Mode:       "FM",
			Bandwidth:  protocol.MaxBandwidth,
		},
		tone:     newToneSource(cfg.SampleRate, cfg.ToneFrequency),
		spectrum: newSpectrumSource(cfg.FFTSize),
	}
	for _, kind := range protocol.AllChannels {
		s.mux.HandleFunc(kind.Path(), s.handleWebSocket(kind))
	}
	return s
}

// Handler returns the HTTP handler serving every channel path
func (s *Server) Handler() http.Handler { return s.mux }

// State returns a copy of the receiver state
func (s *Server) State() ReceiverState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Clients = len(s.clients)
	return st
}

// Run streams frames to connected clients until ctx is cancelled, then
// announces the shutdown and disconnects everyone
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.every(gctx, s.cfg.AudioBlock, s.streamAudio) })
	g.Go(func() error { return s.every(gctx, s.cfg.SpectrumInterval, s.streamSpectrum) })
	g.Go(func() error { return s.every(gctx, s.cfg.PingInterval, s.sendPing) })

	err := g.Wait()
	s.disconnectAll()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ListenAndServe runs the simulator on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.log.WithField("addr", addr).Info("Simulator listening")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(runCtx) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errChan:
		cancel()
	}
	if err := <-runErr; err != nil && serveErr == nil {
		serveErr = err
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("HTTP shutdown error")
	}
	if serveErr != nil {
		return fmt.Errorf("simulator failed: %w", serveErr)
	}
	return nil
}

func (s *Server) every(ctx context.Context, d time.Duration, fn func(time.Time)) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			fn(now)
		}
	}
}

func (s *Server) handleWebSocket(kind protocol.ChannelKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.WithError(err).Warn("WebSocket upgrade error")
			return
		}

		c := &client{
			id:   uuid.NewString(),
			kind: kind,
			conn: conn,
			send: make(chan protocol.Payload, clientSendBuffer),
			done: make(chan struct{}),
		}

		s.mu.Lock()
		if s.shutdown {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.clients[c.id] = c
		s.mu.Unlock()

		log := s.log.WithFields(logrus.Fields{"client": c.id, "channel": kind.String(), "remote": r.RemoteAddr})
		log.Info("Client connected")

		go s.writer(c)
		s.enqueue(c, protocol.ConnectionStatus{Status: "connected", StreamType: kind.String(), ClientID: protocol.ClientID(c.id)})

		s.readLoop(c, log)

		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.stop()
		log.Info("Client disconnected")
	}
}

func (s *Server) readLoop(c *client, log logrus.FieldLogger) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			s.reject(c, "protocol", "binary messages are not accepted")
			continue
		}

		msg, err := protocol.ParseControl(data)
		if err != nil {
			log.WithError(err).Warn("Bad control message")
			s.reject(c, "protocol", err.Error())
			continue
		}
		s.handleControl(c, msg)
	}
}

func (s *Server) handleControl(c *client, msg protocol.ControlMessage) {
	switch m := msg.(type) {
	case protocol.SDRControl:
		if err := s.applySDR(m); err != nil {
			s.reject(c, "validation", err.Error())
			return
		}
	case protocol.DemodControl:
		mode, err := protocol.NormalizeDemodMode(m.Mode)
		if err != nil {
			s.reject(c, "validation", err.Error())
			return
		}
		if m.Bandwidth < 0 || m.Bandwidth > protocol.MaxBandwidth {
			s.reject(c, "validation", fmt.Sprintf("bandwidth %d out of range", m.Bandwidth))
			return
		}
		s.mu.Lock()
		s.state.Mode = mode
		if m.Bandwidth > 0 {
			s.state.Bandwidth = m.Bandwidth
		}
		s.mu.Unlock()
		s.tone.setBandwidth(float64(m.Bandwidth))
	case protocol.Ping:
		s.enqueue(c, protocol.Ping{Timestamp: m.Timestamp})
		return
	default:
		s.reject(c, "protocol", fmt.Sprintf("%s is not a client message", msg.ControlType()))
		return
	}
	s.broadcastStatus()
}

func (s *Server) applySDR(m protocol.SDRControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Action {
	case protocol.ActionStart:
		if m.Config == nil {
			return fmt.Errorf("start requires config")
		}
		if err := m.Config.Validate(); err != nil {
			return err
		}
		s.state.Running = true
		s.state.Frequency = m.Config.Frequency
		s.state.Gain = protocol.ClampGain(m.Config.Gain)
		s.state.SampleRate = m.Config.SampleRate
		s.state.DeviceIndex = m.Config.DeviceIndex
	case protocol.ActionStop:
		s.state.Running = false
	case protocol.ActionSetFrequency:
		if m.Frequency <= 0 || m.Frequency > protocol.MaxFrequency {
			return fmt.Errorf("frequency %.0f Hz out of range", m.Frequency)
		}
		s.state.Frequency = m.Frequency
	case protocol.ActionSetGain:
		if m.Gain == nil {
			return fmt.Errorf("set_gain requires gain")
		}
		s.state.Gain = protocol.ClampGain(*m.Gain)
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

func (s *Server) reject(c *client, kind, message string) {
	s.enqueue(c, protocol.ServerError{ErrorType: kind, Message: message, Timestamp: s.now()})
}

func (s *Server) broadcastStatus() {
	data, err := json.Marshal(s.State())
	if err != nil {
		s.log.WithError(err).Error("Failed to encode status")
		return
	}
	s.broadcastAll(protocol.StatusUpdate{Data: data, Timestamp: s.now()})
}

func (s *Server) streamAudio(time.Time) {
	s.broadcast(protocol.ChannelAudio, protocol.AudioFrame{
		Timestamp:  s.millis(),
		SampleRate: float32(s.cfg.SampleRate),
		Samples:    s.tone.next(s.cfg.AudioBlock),
	})
}

func (s *Server) streamSpectrum(time.Time) {
	st := s.State()
	line := s.spectrum.next()
	ts := s.millis()

	s.broadcast(protocol.ChannelSpectrum, protocol.SpectrumFrame{
		Timestamp:       ts,
		SampleRate:      float32(st.SampleRate),
		CenterFrequency: float32(st.Frequency),
		Spectrum:        line,
	})
	s.broadcast(protocol.ChannelWaterfall, protocol.WaterfallFrame{
		Timestamp: ts,
		Data:      waterfallLine(line),
	})
}

func (s *Server) sendPing(time.Time) {
	s.broadcastAll(protocol.Ping{Timestamp: s.now()})
}

// broadcast encodes v once and queues it for every client of kind
func (s *Server) broadcast(kind protocol.ChannelKind, v interface{}) {
	p, err := protocol.Encode(v)
	if err != nil {
		s.log.WithError(err).Error("Encode failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.kind == kind {
			s.offerLocked(c, p)
		}
	}
}

func (s *Server) broadcastAll(msg protocol.ControlMessage) {
	p, err := protocol.Encode(msg)
	if err != nil {
		s.log.WithError(err).Error("Encode failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		s.offerLocked(c, p)
	}
}

func (s *Server) enqueue(c *client, msg protocol.ControlMessage) {
	p, err := protocol.Encode(msg)
	if err != nil {
		s.log.WithError(err).Error("Encode failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerLocked(c, p)
}

// offerLocked never blocks; slow clients lose frames
func (s *Server) offerLocked(c *client, p protocol.Payload) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- p:
		s.state.FramesSent++
	default:
		s.state.FramesDropped++
	}
}

func (s *Server) writer(c *client) {
	defer c.conn.Close()
	for {
		select {
		case p := <-c.send:
			if err := write(c.conn, p); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			for {
				select {
				case p := <-c.send:
					if write(c.conn, p) != nil {
						return
					}
				default:
					c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
						time.Now().Add(time.Second))
					return
				}
			}
		}
	}
}

func write(conn *websocket.Conn, p protocol.Payload) error {
	mt := websocket.BinaryMessage
	if p.Type == protocol.PayloadText {
		mt = websocket.TextMessage
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(mt, p.Data)
}

func (s *Server) disconnectAll() {
	bye, _ := protocol.Encode(protocol.ServerDisconnect{Message: "Server shutting down", Timestamp: s.now()})

	s.mu.Lock()
	s.shutdown = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		s.offerLocked(c, bye)
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	s.log.WithField("clients", len(clients)).Info("Simulator stopped")
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func (s *Server) now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (s *Server) millis() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}
