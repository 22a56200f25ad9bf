// ABOUTME: Bounded FIFO of outbound payloads held while a channel is down
// ABOUTME: Drops the oldest payload when full so the newest are kept
package transport

import "github.com/h1sdr/websdr-go/pkg/protocol"

// DefaultMaxQueueSize bounds the outbound queue
const DefaultMaxQueueSize = 100

// Queue is a bounded FIFO. It is guarded by its owning Channel.
type Queue struct {
	items   []protocol.Payload
	max     int
	dropped uint64
}

// NewQueue returns a queue holding at most max payloads
func NewQueue(max int) *Queue {
	if max <= 0 {
		max = DefaultMaxQueueSize
	}
	return &Queue{max: max}
}

// Push appends p, discarding the oldest entry when full. Returns true when
// something was discarded.
func (q *Queue) Push(p protocol.Payload) bool {
	dropped := false
	if len(q.items) >= q.max {
		q.items[0] = protocol.Payload{}
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, p)
	return dropped
}

// PushFront returns p to the head of the queue after a failed send. If the
// queue filled up in the meantime p is the oldest entry and is discarded.
func (q *Queue) PushFront(p protocol.Payload) bool {
	if len(q.items) >= q.max {
		q.dropped++
		return true
	}
	q.items = append(q.items, protocol.Payload{})
	copy(q.items[1:], q.items)
	q.items[0] = p
	return false
}

// Pop removes and returns the oldest payload
func (q *Queue) Pop() (protocol.Payload, bool) {
	if len(q.items) == 0 {
		return protocol.Payload{}, false
	}
	p := q.items[0]
	q.items[0] = protocol.Payload{}
	q.items = q.items[1:]
	return p, true
}

// Len returns the number of queued payloads
func (q *Queue) Len() int { return len(q.items) }

// Dropped returns the number of payloads discarded for space
func (q *Queue) Dropped() uint64 { return q.dropped }
