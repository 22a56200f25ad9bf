// ABOUTME: Audio output tests
// ABOUTME: Verifies the pull reader byte layout and the headless clock
package output

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"
)

type rampSource struct {
	mu    sync.Mutex
	next  float32
	calls int
}

func (s *rampSource) Process(out []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for i := range out {
		out[i] = s.next
		s.next += 0.25
	}
}

func TestOutputsImplementInterface(t *testing.T) {
	var _ Output = (*Oto)(nil)
	var _ Output = (*Clock)(nil)
}

func TestSourceReaderMono(t *testing.T) {
	r := newSourceReader(&rampSource{}, 1)

	p := make([]byte, 14)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 3 whole samples (12 bytes), got %d", n)
	}
	for i, want := range []float32{0, 0.25, 0.5} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != want {
			t.Errorf("sample %d: expected %f, got %f", i, want, got)
		}
	}
}

func TestSourceReaderStereoDuplicates(t *testing.T) {
	r := newSourceReader(&rampSource{next: 0.5}, 2)

	p := make([]byte, 16)
	if n, _ := r.Read(p); n != 16 {
		t.Fatalf("expected 16 bytes, got %d", n)
	}
	want := []float32{0.5, 0.5, 0.75, 0.75}
	for i := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != want[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], got)
		}
	}
}

type fixedSource []float32

func (s fixedSource) Process(out []float32) { copy(out, s) }

func TestSourceReaderClips(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		want     []float32
	}{
		{"mono", 1, []float32{1, -1, 0.5, 0}},
		{"stereo", 2, []float32{1, 1, -1, -1, 0.5, 0.5, 0, 0}},
	}
	src := fixedSource{2.5, -3, 0.5, float32(math.NaN())}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSourceReader(src, tt.channels)
			p := make([]byte, 4*len(tt.want))
			if n, _ := r.Read(p); n != len(p) {
				t.Fatalf("expected %d bytes, got %d", len(p), n)
			}
			for i, want := range tt.want {
				got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
				if got != want {
					t.Errorf("sample %d: expected %f, got %f", i, want, got)
				}
			}
		})
	}
}

func TestSourceReaderShortBuffer(t *testing.T) {
	src := &rampSource{}
	r := newSourceReader(src, 2)
	if n, _ := r.Read(make([]byte, 7)); n != 0 {
		t.Errorf("expected no partial frame, got %d bytes", n)
	}
	if src.calls != 0 {
		t.Errorf("expected no render for a short read")
	}
}

func TestClockPullsBlocks(t *testing.T) {
	src := &rampSource{}
	blocks := make(chan int, 16)
	c := &Clock{
		Block: 5 * time.Millisecond,
		OnBlock: func(b []float32) {
			select {
			case blocks <- len(b):
			default:
			}
		},
	}

	if err := c.Open(8000, 1, src); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	select {
	case n := <-blocks:
		if n != 40 {
			t.Errorf("expected 40-sample blocks, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("clock never rendered")
	}

	c.Close()
	c.Close()

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.calls != calls {
		t.Errorf("expected no renders after close")
	}
}
