// ABOUTME: Message-passing wrapper that runs an engine on the audio goroutine
// ABOUTME: Writes queue in a bounded inbox, control commands are never dropped
package playout

import (
	"sync"
	"sync/atomic"
)

// Command is a request posted to a Node. Implementations are the structs
// below.
type Command interface {
	isCommand()
}

// Write appends samples. The node takes ownership of the slice.
type Write struct {
	Samples []float32
}

// Configure resizes the buffer and returns the engine to Idle
type Configure struct {
	SampleRate      int
	CapacitySeconds float64
}

// Start begins pre-buffering
type Start struct{}

// Stop returns to Idle and clears the buffer
type Stop struct{}

// SetVolume sets the output scale
type SetVolume struct {
	Volume float64
}

// SetSquelch sets the mute gate threshold
type SetSquelch struct {
	Threshold float64
}

// SetAGC toggles gain control and sets its target
type SetAGC struct {
	Enabled bool
	Target  float64
}

// GetStats asks for a StatsReport event
type GetStats struct{}

func (Write) isCommand()      {}
func (Configure) isCommand()  {}
func (Start) isCommand()      {}
func (Stop) isCommand()       {}
func (SetVolume) isCommand()  {}
func (SetSquelch) isCommand() {}
func (SetAGC) isCommand()     {}
func (GetStats) isCommand()   {}

// Default channel sizes
const (
	DefaultInboxSize  = 256
	DefaultEventsSize = 64
)

// sequenced tags a command with the order it was posted in
type sequenced struct {
	seq uint64
	cmd Command
}

// Node owns an Engine and serializes every access to it onto the goroutine
// that calls Process. Writes travel through a bounded channel and are
// rejected when it is full. Every other command goes on a control list
// that is never dropped; a newer SetVolume, SetSquelch, SetAGC or GetStats
// replaces a pending one of the same kind. Process applies both streams in
// posting order.
type Node struct {
	engine *Engine
	writes chan sequenced
	events chan Event

	mu      sync.Mutex
	seq     uint64
	control []sequenced
	spare   []sequenced
	posted  atomic.Uint64 // seq of the newest control command

	// Owned by the Process goroutine.
	taken      uint64 // seq of the newest control command handed to Process
	pending    sequenced
	hasPending bool

	rejectedWrites  atomic.Uint64
	rejectedSamples atomic.Uint64
	droppedEvents   atomic.Uint64
}

// NewNode wraps engine. inboxSize bounds the number of queued writes.
// Non-positive sizes take the defaults.
func NewNode(engine *Engine, inboxSize, eventsSize int) *Node {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	if eventsSize <= 0 {
		eventsSize = DefaultEventsSize
	}
	n := &Node{
		engine: engine,
		writes: make(chan sequenced, inboxSize),
		events: make(chan Event, eventsSize),
	}
	engine.OnEvent(n.emit)
	return n
}

// Post queues cmd for the rendering goroutine. The renderer only ever
// try-locks, so Post never waits on it. It returns false only for a Write rejected by a full inbox;
// the rejected samples are counted in Stats.Dropped.
func (n *Node) Post(cmd Command) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if w, ok := cmd.(Write); ok {
		select {
		case n.writes <- sequenced{seq: n.seq + 1, cmd: w}:
			n.seq++
			return true
		default:
			n.rejectedWrites.Add(1)
			n.rejectedSamples.Add(uint64(len(w.Samples)))
			return false
		}
	}

	n.control = supersede(n.control, cmd)
	n.seq++
	n.control = append(n.control, sequenced{seq: n.seq, cmd: cmd})
	n.posted.Store(n.seq)
	return true
}

// supersede removes a pending command that cmd makes redundant
func supersede(list []sequenced, cmd Command) []sequenced {
	for i, p := range list {
		if sameSetting(p.cmd, cmd) {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = sequenced{}
			return list[:len(list)-1]
		}
	}
	return list
}

func sameSetting(a, b Command) bool {
	switch a.(type) {
	case SetVolume:
		_, ok := b.(SetVolume)
		return ok
	case SetSquelch:
		_, ok := b.(SetSquelch)
		return ok
	case SetAGC:
		_, ok := b.(SetAGC)
		return ok
	case GetStats:
		_, ok := b.(GetStats)
		return ok
	}
	return false
}

// Events returns the channel events are delivered on. Events are dropped
// when nobody drains it.
func (n *Node) Events() <-chan Event {
	return n.events
}

// Process applies every pending command and renders len(out) samples.
// It is the only method that touches the engine and must be called from a
// single goroutine. If the control list is contended the controls wait for
// the next call, along with any write posted after them.
func (n *Node) Process(out []float32) {
	batch := n.takeControl()
	i := 0
	for {
		if !n.hasPending {
			select {
			case w := <-n.writes:
				n.pending, n.hasPending = w, true
			default:
			}
		}
		if i < len(batch) && (!n.hasPending || batch[i].seq < n.pending.seq) {
			n.apply(batch[i].cmd)
			batch[i] = sequenced{}
			i++
			continue
		}
		// Every control not yet taken has a seq above n.taken.
		if n.hasPending && (n.pending.seq <= n.taken || n.posted.Load() == n.taken) {
			n.apply(n.pending.cmd)
			n.pending, n.hasPending = sequenced{}, false
			continue
		}
		break
	}
	n.engine.RenderInto(out)
}

func (n *Node) takeControl() []sequenced {
	if n.posted.Load() == n.taken || !n.mu.TryLock() {
		return nil
	}
	batch := n.control
	n.control = n.spare[:0]
	n.spare = batch
	n.taken = n.posted.Load()
	n.mu.Unlock()
	return batch
}

func (n *Node) apply(cmd Command) {
	var err error
	switch c := cmd.(type) {
	case Write:
		err = n.engine.Write(c.Samples)
	case Configure:
		err = n.engine.Configure(c.SampleRate, c.CapacitySeconds)
	case Start:
		err = n.engine.Start()
	case Stop:
		n.engine.Stop()
	case SetVolume:
		n.engine.SetVolume(c.Volume)
	case SetSquelch:
		n.engine.SetSquelch(c.Threshold)
	case SetAGC:
		n.engine.SetAGC(c.Enabled, c.Target)
	case GetStats:
		st := n.engine.Stats()
		st.Rejected = n.rejectedSamples.Load()
		st.Dropped += st.Rejected
		n.emit(StatsReport{Stats: st})
	}
	if err != nil {
		n.emit(CommandFailed{Command: cmd, Err: err})
	}
}

func (n *Node) emit(ev Event) {
	select {
	case n.events <- ev:
	default:
		n.droppedEvents.Add(1)
	}
}

// RejectedWrites returns the number of writes refused by a full inbox
func (n *Node) RejectedWrites() uint64 { return n.rejectedWrites.Load() }

// RejectedSamples returns the samples carried by rejected writes
func (n *Node) RejectedSamples() uint64 { return n.rejectedSamples.Load() }

// DroppedEvents returns the number of events nobody received in time
func (n *Node) DroppedEvents() uint64 { return n.droppedEvents.Load() }
