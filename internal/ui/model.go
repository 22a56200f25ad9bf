// ABOUTME: Bubbletea model for the receiver status panel
// ABOUTME: Tracks channel, playout and receiver state and maps keys to controls
package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/h1sdr/websdr-go/pkg/playout"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/h1sdr/websdr-go/pkg/transport"
)

// Key steps
const (
	VolumeStep  = 5
	SquelchStep = 0.01
	TuneStep    = 1000.0
	MaxSquelch  = 1.0
)

// Receiver is the subset of a status_update the panel shows
type Receiver struct {
	Running   bool    `json:"running"`
	Frequency float64 `json:"frequency"`
	Gain      float64 `json:"gain"`
	Mode      string  `json:"mode"`
	Bandwidth int     `json:"bandwidth"`
}

// ParseReceiver decodes the data object of a status_update
func ParseReceiver(data json.RawMessage) (Receiver, error) {
	var r Receiver
	if err := json.Unmarshal(data, &r); err != nil {
		return Receiver{}, fmt.Errorf("status data: %w", err)
	}
	return r, nil
}

// Model represents the TUI state
type Model struct {
	serverName string
	channels   map[protocol.ChannelKind]transport.Status

	// Playout
	stats   playout.Stats
	volume  int
	muted   bool
	squelch float64
	agc     bool

	receiver    Receiver
	hasReceiver bool
	lastError   string

	showDebug bool
	controls  *Controls

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("WebSDR Player"))
	b.WriteString("\n")
	m.renderChannels(&b)
	b.WriteString("\n")
	m.renderReceiver(&b)
	b.WriteString("\n")
	m.renderPlayout(&b)

	if m.showDebug {
		b.WriteString("\n")
		m.renderDebug(&b)
	}
	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(badStyle.Render("Error: " + truncate(m.lastError, 60)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("↑/↓:Volume  m:Mute  s/S:Squelch  a:AGC  ←/→:Tune  d:Debug  q:Quit"))
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-9s", name+":")))
	b.WriteString(value)
	b.WriteString("\n")
}

func (m Model) renderChannels(b *strings.Builder) {
	field(b, "Server", valueStyle.Render(m.serverName))
	for _, kind := range protocol.AllChannels {
		st, ok := m.channels[kind]
		if !ok {
			continue
		}
		field(b, kind.String(), channelState(st))
	}
}

func channelState(st transport.Status) string {
	switch st.State {
	case transport.Open:
		return goodStyle.Render("open")
	case transport.Connecting:
		return warnStyle.Render("connecting")
	case transport.Disconnected:
		if st.Delay > 0 {
			return badStyle.Render(fmt.Sprintf("down, retry #%d in %s", st.Attempt, st.Delay))
		}
		return badStyle.Render("down")
	default:
		return valueStyle.Render(st.State.String())
	}
}

func (m Model) renderReceiver(b *strings.Builder) {
	if !m.hasReceiver {
		field(b, "Receiver", valueStyle.Render("no status"))
		return
	}
	state := badStyle.Render("stopped")
	if m.receiver.Running {
		state = goodStyle.Render("running")
	}
	field(b, "Receiver", state)
	field(b, "Tuned", valueStyle.Render(formatFrequency(m.receiver.Frequency)))
	field(b, "Mode", valueStyle.Render(fmt.Sprintf("%s %d Hz, gain %.1f dB", m.receiver.Mode, m.receiver.Bandwidth, m.receiver.Gain)))
}

func (m Model) renderPlayout(b *strings.Builder) {
	state := m.stats.State.String()
	switch m.stats.State {
	case playout.Playing:
		state = goodStyle.Render(state)
	case playout.PreBuffering:
		state = warnStyle.Render(state)
	default:
		state = valueStyle.Render(state)
	}
	field(b, "Playout", state)

	fill := 0
	if m.stats.Capacity > 0 {
		fill = m.stats.Fill * 100 / m.stats.Capacity
	}
	field(b, "Buffer", fmt.Sprintf("[%s] %.2fs", renderBar(fill, 100, 20), m.stats.FillSeconds()))

	mute := ""
	if m.muted {
		mute = " (muted)"
	}
	field(b, "Volume", fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, mute))

	agc := "off"
	if m.agc {
		agc = fmt.Sprintf("on, gain %.2f", m.stats.Gain)
	}
	field(b, "Squelch", valueStyle.Render(fmt.Sprintf("%.2f  AGC: %s", m.squelch, agc)))
	field(b, "Stats", valueStyle.Render(fmt.Sprintf("underruns %d  overflows %d  dropped %d",
		m.stats.Underruns, m.stats.Overflows, m.stats.Dropped)))
}

func (m Model) renderDebug(b *strings.Builder) {
	field(b, "Written", valueStyle.Render(fmt.Sprintf("%d samples", m.stats.SamplesWritten)))
	field(b, "Rendered", valueStyle.Render(fmt.Sprintf("%d samples", m.stats.SamplesRendered)))
	field(b, "Rate", valueStyle.Render(fmt.Sprintf("%d Hz", m.stats.SampleRate)))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	change := true
	retune := 0.0

	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+VolumeStep, 100)
	case "down":
		m.volume = max(m.volume-VolumeStep, 0)
	case "m":
		m.muted = !m.muted
	case "s":
		m.squelch = max(m.squelch-SquelchStep, 0)
	case "S":
		m.squelch = min(m.squelch+SquelchStep, MaxSquelch)
	case "a":
		m.agc = !m.agc
	case "left", "right":
		if !m.hasReceiver || m.receiver.Frequency <= 0 {
			change = false
			break
		}
		step := TuneStep
		if msg.String() == "left" {
			step = -step
		}
		retune = m.receiver.Frequency + step
		if retune <= 0 || retune > protocol.MaxFrequency {
			change = false
			break
		}
		m.receiver.Frequency = retune
	case "d":
		m.showDebug = !m.showDebug
		change = false
	default:
		change = false
	}

	if change {
		m.send(retune)
	}
	return m, nil
}

func (m Model) send(frequency float64) {
	if m.controls == nil {
		return
	}
	volume := float64(m.volume) / 100
	if m.muted {
		volume = 0
	}
	select {
	case m.controls.Changes <- Change{Volume: volume, Squelch: m.squelch, AGC: m.agc, Frequency: frequency}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Channel != nil {
		if m.channels == nil {
			m.channels = make(map[protocol.ChannelKind]transport.Status)
		}
		m.channels[msg.Channel.Kind] = *msg.Channel
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
	if msg.Receiver != nil {
		m.receiver = *msg.Receiver
		m.hasReceiver = true
	}
	if msg.Error != "" {
		m.lastError = msg.Error
	}
}

// StatusMsg updates TUI state. Nil and empty fields leave state unchanged.
type StatusMsg struct {
	ServerName string
	Channel    *transport.Status
	Stats      *playout.Stats
	Receiver   *Receiver
	Error      string
}

func renderBar(value, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / total
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatFrequency(hz float64) string {
	switch {
	case hz >= 1e6:
		return fmt.Sprintf("%.4f MHz", hz/1e6)
	case hz >= 1e3:
		return fmt.Sprintf("%.1f kHz", hz/1e3)
	default:
		return fmt.Sprintf("%.0f Hz", hz)
	}
}
