// ABOUTME: Headless output that drives the source from a ticker
// ABOUTME: Keeps the playout path running when no audio device is wanted
package output

import (
	"sync"
	"time"
)

// DefaultClockBlock is the render period of a Clock
const DefaultClockBlock = 20 * time.Millisecond

// Clock pulls blocks from the source at real-time cadence and discards them,
// or hands them to OnBlock
type Clock struct {
	Block   time.Duration
	OnBlock func([]float32)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewClock returns a clock output with the default block period
func NewClock() *Clock {
	return &Clock{Block: DefaultClockBlock}
}

// Open starts the ticker goroutine. Reopening restarts it with the new source.
func (c *Clock) Open(sampleRate, channels int, src Source) error {
	c.Close()

	block := c.Block
	if block <= 0 {
		block = DefaultClockBlock
	}
	frames := int(int64(sampleRate) * int64(block) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}

	c.mu.Lock()
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	buf := make([]float32, frames)
	go func() {
		defer close(done)
		ticker := time.NewTicker(block)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				src.Process(buf)
				if c.OnBlock != nil {
					c.OnBlock(buf)
				}
			}
		}
	}()
	return nil
}

// Close stops the ticker and waits for the last block
func (c *Clock) Close() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
