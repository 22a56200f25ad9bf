// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and control messages
package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/h1sdr/websdr-go/pkg/playout"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/h1sdr/websdr-go/pkg/transport"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, _ := m.Update(key(k))
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, Initial{Volume: 0.8, Squelch: 0.05, AGC: true})

	if model.volume != 80 {
		t.Errorf("expected volume 80, got %d", model.volume)
	}
	if model.squelch != 0.05 {
		t.Errorf("expected squelch 0.05, got %v", model.squelch)
	}
	if !model.agc {
		t.Error("expected AGC on")
	}
	if model.muted || model.showDebug || model.hasReceiver {
		t.Error("expected muted, debug and receiver to start unset")
	}
}

func TestStatusMsgChannel(t *testing.T) {
	model := NewModel(nil, Initial{})
	model.applyStatus(StatusMsg{
		ServerName: "shack",
		Channel:    &transport.Status{Kind: protocol.ChannelAudio, State: transport.Open},
	})
	model.applyStatus(StatusMsg{
		Channel: &transport.Status{Kind: protocol.ChannelControl, State: transport.Disconnected, Attempt: 2, Delay: 2 * time.Second},
	})

	if model.serverName != "shack" {
		t.Errorf("expected server name shack, got %q", model.serverName)
	}
	if model.channels[protocol.ChannelAudio].State != transport.Open {
		t.Error("expected audio channel open")
	}
	if model.channels[protocol.ChannelControl].Attempt != 2 {
		t.Error("expected control retry attempt recorded")
	}

	model.width = 80
	view := model.View()
	if !strings.Contains(view, "retry #2 in 2s") {
		t.Errorf("expected retry in view, got:\n%s", view)
	}
}

func TestStatusMsgPartialUpdate(t *testing.T) {
	model := NewModel(nil, Initial{})
	model.applyStatus(StatusMsg{ServerName: "one", Stats: &playout.Stats{Fill: 10}})
	model.applyStatus(StatusMsg{Error: "boom"})

	if model.serverName != "one" {
		t.Error("expected server name to survive a partial update")
	}
	if model.stats.Fill != 10 {
		t.Error("expected stats to survive a partial update")
	}
	if model.lastError != "boom" {
		t.Errorf("expected last error boom, got %q", model.lastError)
	}
}

func TestParseReceiver(t *testing.T) {
	r, err := ParseReceiver([]byte(`{"running":true,"frequency":145500000,"gain":40,"mode":"FM","bandwidth":12500,"clients":3}`))
	if err != nil {
		t.Fatalf("ParseReceiver failed: %v", err)
	}
	if !r.Running || r.Frequency != 145.5e6 || r.Mode != "FM" || r.Bandwidth != 12500 {
		t.Errorf("unexpected receiver %+v", r)
	}

	if _, err := ParseReceiver([]byte(`[1,2]`)); err == nil {
		t.Error("expected error for non-object data")
	}
}

func TestKeyControls(t *testing.T) {
	tests := []struct {
		name  string
		keys  []string
		check func(t *testing.T, m Model, c Change)
	}{
		{"volume up clamps", []string{"up", "up", "up", "up", "up"}, func(t *testing.T, m Model, c Change) {
			if m.volume != 100 || c.Volume != 1 {
				t.Errorf("expected volume 100, got %d (%v)", m.volume, c.Volume)
			}
		}},
		{"volume down", []string{"down", "down"}, func(t *testing.T, m Model, c Change) {
			if m.volume != 80 || c.Volume != 0.8 {
				t.Errorf("expected volume 80, got %d (%v)", m.volume, c.Volume)
			}
		}},
		{"mute sends zero volume", []string{"m"}, func(t *testing.T, m Model, c Change) {
			if !m.muted || c.Volume != 0 {
				t.Errorf("expected muted with zero volume, got %v", c.Volume)
			}
		}},
		{"squelch floor", []string{"s"}, func(t *testing.T, m Model, c Change) {
			if m.squelch != 0 || c.Squelch != 0 {
				t.Errorf("expected squelch clamped at 0, got %v", m.squelch)
			}
		}},
		{"squelch up", []string{"S", "S"}, func(t *testing.T, m Model, c Change) {
			if c.Squelch < 0.019 || c.Squelch > 0.021 {
				t.Errorf("expected squelch 0.02, got %v", c.Squelch)
			}
		}},
		{"agc toggle", []string{"a"}, func(t *testing.T, m Model, c Change) {
			if c.AGC {
				t.Error("expected AGC off after toggle")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controls := NewControls()
			m := NewModel(controls, Initial{Volume: 0.9, AGC: true})
			for _, k := range tt.keys {
				m = press(t, m, k)
			}

			var last Change
			for i := 0; i < len(tt.keys); i++ {
				select {
				case last = <-controls.Changes:
				default:
					t.Fatalf("expected %d changes, got %d", len(tt.keys), i)
				}
			}
			tt.check(t, m, last)
		})
	}
}

func TestTuneKeys(t *testing.T) {
	controls := NewControls()
	m := NewModel(controls, Initial{Volume: 1})

	m = press(t, m, "right")
	select {
	case c := <-controls.Changes:
		t.Fatalf("expected no retune before receiver status, got %+v", c)
	default:
	}

	m.applyStatus(StatusMsg{Receiver: &Receiver{Frequency: 7.1e6}})
	m = press(t, m, "right")
	c := <-controls.Changes
	if c.Frequency != 7.101e6 {
		t.Errorf("expected retune to 7.101 MHz, got %v", c.Frequency)
	}
	m = press(t, m, "left")
	c = <-controls.Changes
	if c.Frequency != 7.1e6 {
		t.Errorf("expected retune to 7.1 MHz, got %v", c.Frequency)
	}
	if c.Volume != 1 {
		t.Errorf("expected retune to carry volume, got %v", c.Volume)
	}
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	m := NewModel(controls, Initial{})

	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestDebugToggleSendsNothing(t *testing.T) {
	controls := NewControls()
	m := press(t, NewModel(controls, Initial{}), "d")
	if !m.showDebug {
		t.Error("expected debug shown")
	}
	if len(controls.Changes) != 0 {
		t.Error("expected no control change for debug toggle")
	}
}

func TestViewLoading(t *testing.T) {
	if got := NewModel(nil, Initial{}).View(); got != "Loading..." {
		t.Errorf("expected loading view, got %q", got)
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, total, width int
		want                string
	}{
		{0, 100, 4, "░░░░"},
		{50, 100, 4, "██░░"},
		{150, 100, 4, "████"},
		{5, 0, 2, "░░"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.value, tt.total, tt.width); got != tt.want {
			t.Errorf("renderBar(%d, %d, %d) = %q, want %q", tt.value, tt.total, tt.width, got, tt.want)
		}
	}
}

func TestFormatFrequency(t *testing.T) {
	tests := []struct {
		hz   float64
		want string
	}{
		{145.5e6, "145.5000 MHz"},
		{7100, "7.1 kHz"},
		{500, "500 Hz"},
	}
	for _, tt := range tests {
		if got := formatFrequency(tt.hz); got != tt.want {
			t.Errorf("formatFrequency(%v) = %q, want %q", tt.hz, got, tt.want)
		}
	}
}
