// ABOUTME: Tests for reconnect delay computation and the outbound queue
// ABOUTME: Pure data tests, no timers involved
package transport

import (
	"fmt"
	"testing"
	"time"

	"github.com/h1sdr/websdr-go/pkg/protocol"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(0, 0)
	want := []time.Duration{1000, 2000, 4000, 8000, 16000, 30000, 30000, 30000}

	for i, ms := range want {
		if got := b.Next(); got != ms*time.Millisecond {
			t.Errorf("attempt %d: expected %dms, got %v", i, ms, got)
		}
	}
	if b.Attempt() != len(want) {
		t.Errorf("expected attempt %d, got %d", len(want), b.Attempt())
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Next()

	b.Reset()
	if b.Delay() != 0 || b.Attempt() != 0 {
		t.Errorf("expected cleared backoff, got attempt=%d delay=%v", b.Attempt(), b.Delay())
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("expected 1s after reset, got %v", got)
	}
}

func TestBackoffNoOverflow(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)
	for i := 0; i < 200; i++ {
		if d := b.Next(); d <= 0 || d > time.Minute {
			t.Fatalf("attempt %d: delay %v out of range", i, d)
		}
	}
}

func text(s string) protocol.Payload {
	return protocol.Payload{Type: protocol.PayloadText, Data: []byte(s)}
}

func TestQueueKeepsNewest(t *testing.T) {
	q := NewQueue(3)
	for i := 1; i <= 5; i++ {
		q.Push(text(fmt.Sprintf("m%d", i)))
	}

	if q.Len() != 3 {
		t.Fatalf("expected 3 queued, got %d", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", q.Dropped())
	}
	for _, want := range []string{"m3", "m4", "m5"} {
		p, ok := q.Pop()
		if !ok || string(p.Data) != want {
			t.Errorf("expected %s, got %s", want, p.Data)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueuePushFront(t *testing.T) {
	q := NewQueue(3)
	q.Push(text("b"))
	q.Push(text("c"))
	q.PushFront(text("a"))

	for _, want := range []string{"a", "b", "c"} {
		p, _ := q.Pop()
		if string(p.Data) != want {
			t.Errorf("expected %s, got %s", want, p.Data)
		}
	}

	q.Push(text("x"))
	q.Push(text("y"))
	q.Push(text("z"))
	if !q.PushFront(text("w")) {
		t.Error("expected push-front into full queue to discard")
	}
	if p, _ := q.Pop(); string(p.Data) != "x" {
		t.Errorf("expected x at head, got %s", p.Data)
	}
}
