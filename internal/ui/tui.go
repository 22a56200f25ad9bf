// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it talks to the player on
package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Change is the full control state after a key press. A non-zero Frequency
// requests a retune.
type Change struct {
	Volume    float64
	Squelch   float64
	AGC       bool
	Frequency float64
}

// Controls holds channels for control communication
type Controls struct {
	Changes chan Change
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan Change, 10),
		Quit:    make(chan struct{}, 1),
	}
}

// Initial is the control state shown before the first key press
type Initial struct {
	Volume  float64
	Squelch float64
	AGC     bool
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, initial Initial) Model {
	return Model{
		volume:   int(initial.Volume*100 + 0.5),
		squelch:  initial.Squelch,
		agc:      initial.AGC,
		controls: controls,
	}
}

// TUI runs the status panel
type TUI struct {
	program *tea.Program
	updates chan StatusMsg
	done    chan struct{}
	once    sync.Once
}

// New creates the program without starting it
func New(controls *Controls, initial Initial) *TUI {
	return &TUI{
		program: tea.NewProgram(NewModel(controls, initial), tea.WithAltScreen()),
		updates: make(chan StatusMsg, 64),
		done:    make(chan struct{}),
	}
}

// Run blocks until the user quits or Stop is called
func (t *TUI) Run() error {
	go func() {
		for {
			select {
			case msg := <-t.updates:
				t.program.Send(msg)
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI without blocking
func (t *TUI) Update(msg StatusMsg) {
	select {
	case t.updates <- msg:
	default:
	}
}

// Stop quits the program
func (t *TUI) Stop() {
	t.once.Do(func() { close(t.done) })
	t.program.Quit()
}
