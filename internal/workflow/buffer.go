package workflow

import "sync"

// DefaultOutputTail is the default number of output bytes kept per step.
const DefaultOutputTail = 64 * 1024

// tailBuffer is an io.Writer that keeps only the last capacity bytes
// written. It is safe for concurrent use, so stdout and stderr can share it.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	capacity  int
	truncated bool
}

func newTailBuffer(capacity int) *tailBuffer {
	if capacity <= 0 {
		capacity = DefaultOutputTail
	}
	return &tailBuffer{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Write always consumes all of p.
func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.capacity {
		b.truncated = b.truncated || n > b.capacity || len(b.buf) > 0
		b.buf = append(b.buf[:0], p[n-b.capacity:]...)
		return n, nil
	}

	if over := len(b.buf) + n - b.capacity; over > 0 {
		b.truncated = true
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// String returns the retained tail.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Truncated reports whether any output was discarded.
func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
