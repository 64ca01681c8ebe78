package alert

import (
	"sync"
)

// DefaultRingSize bounds the captured log tail attached to alerts
const DefaultRingSize = 64 * 1024

// RingBuffer is a fixed-size writer that keeps the newest bytes. The
// logger tees every line into it; on task failure the contents become
// the log attachment of the Slack alert. The worker resets it at the
// start of each task so an alert only carries the failing task's tail.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	off  int
	full bool
}

// NewRingBuffer creates a ring buffer holding up to size bytes
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer; it never fails and never blocks on
// anything but the internal mutex
func (b *RingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= len(b.buf) {
		copy(b.buf, p[n-len(b.buf):])
		b.off = 0
		b.full = true
		return n, nil
	}
	tail := copy(b.buf[b.off:], p)
	if tail < n {
		copy(b.buf, p[tail:])
		b.full = true
	}
	b.off = (b.off + n) % len(b.buf)
	if b.off == 0 && tail == n {
		b.full = true
	}
	return n, nil
}

// Contents returns the captured bytes, oldest first
func (b *RingBuffer) Contents() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		return string(b.buf[:b.off])
	}
	out := make([]byte, 0, len(b.buf))
	out = append(out, b.buf[b.off:]...)
	out = append(out, b.buf[:b.off]...)
	return string(out)
}

// Reset discards the captured bytes
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.off = 0
	b.full = false
}

// Len returns the number of captured bytes
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.buf)
	}
	return b.off
}
