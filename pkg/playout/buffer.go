// ABOUTME: Fixed-capacity circular sample store for the playout engine
// ABOUTME: Overwrites the oldest sample when full and counts the drops
package playout

// Buffer is a circular float32 sample store. It is owned by a single Engine
// and is not safe for concurrent use.
type Buffer struct {
	data     []float32
	readPos  int
	writePos int
	fill     int
	dropped  uint64
}

// NewBuffer creates a buffer holding capacity samples
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]float32, capacity)}
}

// Write appends samples. When the buffer is full the oldest sample is
// discarded to make room. Returns the number of samples dropped.
func (b *Buffer) Write(samples []float32) int {
	dropped := 0
	size := len(b.data)
	for _, s := range samples {
		if b.fill == size {
			b.readPos = (b.readPos + 1) % size
			b.fill--
			dropped++
		}
		b.data[b.writePos] = s
		b.writePos = (b.writePos + 1) % size
		b.fill++
	}
	b.dropped += uint64(dropped)
	return dropped
}

// Read pops up to len(dst) samples in FIFO order and returns how many were read
func (b *Buffer) Read(dst []float32) int {
	size := len(b.data)
	n := 0
	for n < len(dst) && b.fill > 0 {
		dst[n] = b.data[b.readPos]
		b.readPos = (b.readPos + 1) % size
		b.fill--
		n++
	}
	return n
}

// Reset empties the buffer and rewinds both cursors. The drop counter is kept.
func (b *Buffer) Reset() {
	b.readPos = 0
	b.writePos = 0
	b.fill = 0
	for i := range b.data {
		b.data[i] = 0
	}
}

// Fill returns the number of buffered samples
func (b *Buffer) Fill() int { return b.fill }

// Capacity returns the maximum number of buffered samples
func (b *Buffer) Capacity() int { return len(b.data) }

// Dropped returns the total number of samples discarded by overflow
func (b *Buffer) Dropped() uint64 { return b.dropped }
