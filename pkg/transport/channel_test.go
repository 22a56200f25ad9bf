// ABOUTME: Tests for the reconnecting channel
// ABOUTME: Uses httptest websocket servers and injected dialers and waits
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

var errRefused = errors.New("connection refused")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

// flakyDialer fails the first failures calls (all calls when negative) and
// then delegates to a real dialer
type flakyDialer struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (d *flakyDialer) DialContext(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()
	if d.failures < 0 || n <= d.failures {
		return nil, nil, errRefused
	}
	return websocket.DefaultDialer.DialContext(ctx, url, h)
}

// blockingDialer never completes until its context is cancelled
type blockingDialer struct {
	called chan struct{}
	once   sync.Once
	calls  int
	mu     sync.Mutex
}

func (d *blockingDialer) DialContext(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.once.Do(func() { close(d.called) })
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

type waitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	limit  int
	done   chan struct{}
}

func newWaitRecorder(limit int) *waitRecorder {
	return &waitRecorder{limit: limit, done: make(chan struct{})}
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	n := len(w.delays)
	w.mu.Unlock()
	if n >= w.limit {
		close(w.done)
		return context.Canceled
	}
	return nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestChannelBackoffOnDialFailure(t *testing.T) {
	rec := newWaitRecorder(8)
	ch, err := NewChannel(Config{
		URL:    "ws://127.0.0.1:1/ws/audio",
		Kind:   protocol.ChannelAudio,
		Dialer: &flakyDialer{failures: -1},
		Wait:   rec.wait,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}
	defer ch.Close()

	ch.Connect()
	receive(t, rec.done)

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for i, s := range want {
		if rec.delays[i] != s*time.Second {
			t.Errorf("attempt %d: expected %ds, got %v", i, s, rec.delays[i])
		}
	}
}

func TestChannelBackoffResetsAfterOpen(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	rec := newWaitRecorder(3)
	ch, _ := NewChannel(Config{
		URL:    wsURL(srv),
		Kind:   protocol.ChannelSpectrum,
		Dialer: &flakyDialer{failures: 2},
		Wait:   rec.wait,
		Logger: quietLogger(),
	})
	defer ch.Close()

	ch.Connect()
	receive(t, rec.done)

	want := []time.Duration{time.Second, 2 * time.Second, time.Second}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], rec.delays[i])
		}
	}
}

func TestChannelFlushesQueueInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	}))
	defer srv.Close()

	opened := make(chan struct{}, 1)
	ch, _ := NewChannel(Config{
		URL:          wsURL(srv),
		Kind:         protocol.ChannelControl,
		MaxQueueSize: 3,
		Logger:       quietLogger(),
		OnStatus: func(s Status) {
			if s.State == Open {
				opened <- struct{}{}
			}
		},
	})
	defer ch.Close()

	for i := 1; i <= 5; i++ {
		if err := ch.Send(text(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("send while disconnected failed: %v", err)
		}
	}
	if ch.Queued() != 3 || ch.Dropped() != 2 {
		t.Fatalf("expected 3 queued and 2 dropped, got %d/%d", ch.Queued(), ch.Dropped())
	}

	ch.Connect()
	for _, want := range []string{"m3", "m4", "m5"} {
		if got := receive(t, received); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}

	receive(t, opened)
	if ch.State() != Open {
		t.Fatalf("expected open, got %s", ch.State())
	}
	ch.Send(text("m6"))
	if got := receive(t, received); got != "m6" {
		t.Errorf("expected m6 to be written directly, got %s", got)
	}
}

func TestChannelDispatchesDecodedMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	frames := make(chan protocol.Frame, 4)
	controls := make(chan protocol.ControlMessage, 4)
	ch, _ := NewChannel(Config{
		URL:       wsURL(srv),
		Kind:      protocol.ChannelAudio,
		Logger:    quietLogger(),
		OnFrame:   func(f protocol.Frame) { frames <- f },
		OnControl: func(m protocol.ControlMessage) { controls <- m },
	})
	defer ch.Close()
	ch.Connect()

	conn := receive(t, serverConns)
	defer conn.Close()

	first := protocol.AudioFrame{Timestamp: 1, SampleRate: 48000, Samples: []float32{0.5}}
	second := protocol.AudioFrame{Timestamp: 2, SampleRate: 48000, Samples: []float32{-0.5}}
	conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeFrame(first))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","timestamp":1}`))
	conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2})
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`))
	conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeFrame(second))

	if f := receive(t, frames).(protocol.AudioFrame); f.Timestamp != 1 {
		t.Errorf("expected first frame, got %+v", f)
	}
	if m, ok := receive(t, controls).(protocol.Ping); !ok || m.Timestamp != 1 {
		t.Errorf("expected ping, got %+v", m)
	}
	if f := receive(t, frames).(protocol.AudioFrame); f.Timestamp != 2 {
		t.Errorf("expected connection to survive bad messages, got %+v", f)
	}
	if ch.DecodeErrors() != 2 {
		t.Errorf("expected 2 decode errors, got %d", ch.DecodeErrors())
	}
}

func TestChannelCloseCancelsReconnectWait(t *testing.T) {
	scheduled := make(chan Status, 1)
	ch, _ := NewChannel(Config{
		URL:         "ws://127.0.0.1:1/ws/audio",
		Dialer:      &flakyDialer{failures: -1},
		BackoffBase: time.Hour,
		BackoffMax:  time.Hour,
		Logger:      quietLogger(),
		OnStatus: func(s Status) {
			if s.State == Disconnected && s.Err != nil {
				select {
				case scheduled <- s:
				default:
				}
			}
		},
	})
	ch.Connect()

	st := receive(t, scheduled)
	if st.Delay != time.Hour || st.Attempt != 1 || !errors.Is(st.Err, errRefused) {
		t.Errorf("unexpected status %+v", st)
	}

	ch.Close()
	receive(t, ch.Done())
	if ch.State() != Disconnected {
		t.Errorf("expected disconnected after close, got %s", ch.State())
	}
}

func TestChannelCloseCancelsPendingDial(t *testing.T) {
	dialer := &blockingDialer{called: make(chan struct{})}
	ch, _ := NewChannel(Config{
		URL:    "ws://10.255.255.1/ws/audio",
		Dialer: dialer,
		Logger: quietLogger(),
	})

	ch.Connect()
	ch.Connect()
	receive(t, dialer.called)

	ch.Close()
	receive(t, ch.Done())

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if dialer.calls != 1 {
		t.Errorf("expected one dial, got %d", dialer.calls)
	}
}

func TestChannelClosed(t *testing.T) {
	ch, _ := NewChannel(Config{URL: "ws://127.0.0.1:1/", Logger: quietLogger()})
	if err := ch.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	receive(t, ch.Done())

	if err := ch.Connect(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Connect, got %v", err)
	}
	if err := ch.Send(text("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Send, got %v", err)
	}
}

func TestNewChannelRequiresURL(t *testing.T) {
	if _, err := NewChannel(Config{}); !errors.Is(err, ErrNoURL) {
		t.Errorf("expected ErrNoURL, got %v", err)
	}
}
