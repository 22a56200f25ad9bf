// ABOUTME: Self-healing websocket connection for one WebSDR channel
// ABOUTME: Dials, dispatches decoded messages, queues sends and redials with backoff
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned by Connect and Send after Close
	ErrClosed = errors.New("channel closed")
	// ErrNoURL is returned by NewChannel when Config.URL is empty
	ErrNoURL = errors.New("channel url is required")
)

// State is the connection state of a Channel
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is delivered to OnStatus on every state change. Attempt and Delay
// describe the scheduled reconnect when State is Disconnected.
type Status struct {
	Kind    protocol.ChannelKind
	State   State
	Attempt int
	Delay   time.Duration
	Err     error
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// WaitFunc blocks for d or until ctx is done
type WaitFunc func(ctx context.Context, d time.Duration) error

// Config describes one channel
type Config struct {
	URL          string
	Kind         protocol.ChannelKind
	Header       http.Header
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxQueueSize int

	// Dialer defaults to a gorilla dialer without a handshake timeout; a
	// pending dial ends only when Close is called.
	Dialer Dialer
	// Wait defaults to a timer bounded by the channel context
	Wait   WaitFunc
	Logger logrus.FieldLogger

	// Callbacks run on the channel's reader goroutine
	OnFrame   func(protocol.Frame)
	OnControl func(protocol.ControlMessage)
	OnStatus  func(Status)
}

// Channel is one logical connection that reconnects until closed
type Channel struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	queue   *Queue
	backoff *Backoff
	started bool
	closed  bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	decodeErrors atomic.Uint64
}

// NewChannel validates cfg and returns a disconnected channel
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
		}
	}
	if cfg.Wait == nil {
		cfg.Wait = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		cfg:     cfg,
		log:     cfg.Logger.WithField("channel", cfg.Kind.String()),
		queue:   NewQueue(cfg.MaxQueueSize),
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Connect starts the connection loop. It returns immediately and is a no-op
// once the loop is running.
func (c *Channel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	go c.run()
	return nil
}

// Send writes p now when the connection is open and queues it otherwise.
// Write failures queue the payload for the next connection; they are never
// returned.
func (c *Channel) Send(p protocol.Payload) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Open || c.conn == nil {
		c.enqueueLocked(p)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	if err := c.write(conn, p); err != nil {
		c.log.WithError(err).Warn("Send failed, queueing for reconnect")
		c.mu.Lock()
		c.enqueueLocked(p)
		c.mu.Unlock()
		conn.Close()
	}
	return nil
}

// SendMessage encodes v with protocol.Encode and sends it
func (c *Channel) SendMessage(v interface{}) error {
	p, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return c.Send(p)
}

func (c *Channel) enqueueLocked(p protocol.Payload) {
	if c.queue.Push(p) {
		c.log.WithFields(logrus.Fields{
			"queued":  c.queue.Len(),
			"dropped": c.queue.Dropped(),
		}).Warn("Outbound queue full, dropped oldest message")
	}
}

// Close stops the channel for good. It closes the socket, cancels a pending
// dial or reconnect wait and suppresses further reconnects. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	started := c.started
	st, changed := c.setStateLocked(Closing, nil)
	c.mu.Unlock()
	c.notify(st, changed)

	c.cancel()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}

	if !started {
		c.finish()
	}
	return nil
}

// Done is closed once the connection loop has exited after Close
func (c *Channel) Done() <-chan struct{} { return c.done }

// State returns the current connection state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Kind returns the channel kind
func (c *Channel) Kind() protocol.ChannelKind { return c.cfg.Kind }

// Queued returns the number of payloads waiting for a connection
func (c *Channel) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Dropped returns the number of queued payloads discarded for space
func (c *Channel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Dropped()
}

// DecodeErrors returns the number of inbound messages dropped as undecodable
func (c *Channel) DecodeErrors() uint64 { return c.decodeErrors.Load() }

func (c *Channel) run() {
	defer c.finish()

	for c.ctx.Err() == nil {
		c.transition(Connecting, nil)

		c.log.WithField("url", c.cfg.URL).Debug("Dialing")
		conn, _, err := c.cfg.Dialer.DialContext(c.ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if !c.waitRetry(err) {
				return
			}
			continue
		}

		if err := c.open(conn); err != nil {
			conn.Close()
			if errors.Is(err, ErrClosed) || !c.waitRetry(err) {
				return
			}
			continue
		}

		err = c.readLoop(conn)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		if !c.waitRetry(err) {
			return
		}
	}
}

// open installs conn, flushes the queue in FIFO order and only then marks
// the channel open, so sends racing the flush stay behind it
func (c *Channel) open(conn *websocket.Conn) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.conn = conn
	c.backoff.Reset()
	c.mu.Unlock()

	flushed := 0
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		p, ok := c.queue.Pop()
		if !ok {
			st, changed := c.setStateLocked(Open, nil)
			c.mu.Unlock()
			c.notify(st, changed)
			break
		}
		c.mu.Unlock()

		if err := c.write(conn, p); err != nil {
			c.mu.Lock()
			c.queue.PushFront(p)
			c.conn = nil
			c.mu.Unlock()
			return fmt.Errorf("flush queued message: %w", err)
		}
		flushed++
	}

	c.log.WithField("flushed", flushed).Info("Channel open")
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch mt {
		case websocket.BinaryMessage:
			frame, err := protocol.Decode(c.cfg.Kind, data)
			if err != nil {
				c.discard(err, len(data))
				continue
			}
			if c.cfg.OnFrame != nil {
				c.cfg.OnFrame(frame)
			}
		case websocket.TextMessage:
			msg, err := protocol.ParseControl(data)
			if err != nil {
				c.discard(err, len(data))
				continue
			}
			if c.cfg.OnControl != nil {
				c.cfg.OnControl(msg)
			}
		}
	}
}

func (c *Channel) discard(err error, size int) {
	c.decodeErrors.Add(1)
	c.log.WithError(err).WithField("bytes", size).Warn("Dropping undecodable message")
}

// waitRetry schedules the next dial. Returns false when the channel was
// closed during the wait.
func (c *Channel) waitRetry(cause error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	delay := c.backoff.Next()
	attempt := c.backoff.Attempt()
	st, changed := c.setStateLocked(Disconnected, cause)
	c.mu.Unlock()
	c.notify(st, changed)

	c.log.WithError(cause).WithFields(logrus.Fields{
		"attempt": attempt,
		"delay":   delay,
	}).Warn("Channel down, scheduling reconnect")

	return c.cfg.Wait(c.ctx, delay) == nil
}

func (c *Channel) write(conn *websocket.Conn, p protocol.Payload) error {
	mt := websocket.BinaryMessage
	if p.Type == protocol.PayloadText {
		mt = websocket.TextMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(mt, p.Data)
}

func (c *Channel) finish() {
	c.transition(Disconnected, nil)
	close(c.done)
}

func (c *Channel) transition(s State, err error) {
	c.mu.Lock()
	st, changed := c.setStateLocked(s, err)
	c.mu.Unlock()
	c.notify(st, changed)
}

// setStateLocked records s and returns the status to deliver once c.mu is
// released. A Disconnected status always reports, since it carries a new
// reconnect delay.
func (c *Channel) setStateLocked(s State, err error) (Status, bool) {
	if c.closed && s != Closing && s != Disconnected {
		return Status{}, false
	}
	changed := c.state != s || (s == Disconnected && err != nil)
	c.state = s
	st := Status{Kind: c.cfg.Kind, State: s, Err: err}
	if s == Disconnected && err != nil {
		st.Attempt = c.backoff.Attempt()
		st.Delay = c.backoff.Delay()
	}
	return st, changed
}

func (c *Channel) notify(st Status, changed bool) {
	if !changed {
		return
	}
	c.log.WithField("state", st.State.String()).Debug("Channel state")
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(st)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
