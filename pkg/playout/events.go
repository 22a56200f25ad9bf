// ABOUTME: Events emitted by the playout engine
// ABOUTME: Closed set of state, buffer health and statistics notifications
package playout

// Event is a notification from the engine. Implementations are the structs
// in this file.
type Event interface {
	isEvent()
}

// StateChanged reports every state machine transition
type StateChanged struct {
	From State
	To   State
}

// StartedPlaying is emitted when pre-buffering completes. Healthy reports
// whether the fill was at least the minimum pre-buffer level.
type StartedPlaying struct {
	Fill    int
	Healthy bool
}

// Underrun is emitted when a render found fewer samples than requested
type Underrun struct {
	Fill     int
	Required int
}

// LowBuffer is emitted when a render left the fill below the low watermark
type LowBuffer struct {
	Fill     int
	Required int
}

// Overflow is emitted once per write that discarded old samples
type Overflow struct {
	Dropped int
}

// StatsReport answers a GetStats command
type StatsReport struct {
	Stats Stats
}

// CommandFailed reports a command the engine could not apply
type CommandFailed struct {
	Command Command
	Err     error
}

func (StateChanged) isEvent()   {}
func (StartedPlaying) isEvent() {}
func (Underrun) isEvent()       {}
func (LowBuffer) isEvent()      {}
func (Overflow) isEvent()       {}
func (StatsReport) isEvent()    {}
func (CommandFailed) isEvent()  {}
