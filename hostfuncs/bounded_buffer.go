package hostfuncs

import (
	"bytes"
	"sync"
)

// DefaultMaxOutputSize caps the stdout and stderr captured per silo (10MB).
const DefaultMaxOutputSize = 10 * 1024 * 1024

// DefaultMaxRequestSize caps a single guest request read from memory (1MB).
const DefaultMaxRequestSize = 1 * 1024 * 1024

// BoundedBuffer captures silo output up to a limit. Writes past the limit
// are counted and dropped. It is safe to read while a guest or a process
// is still writing.
type BoundedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped int64
}

// NewBoundedBuffer creates a buffer holding at most limit bytes.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{limit: limit}
}

// Write keeps what fits and always reports len(p) so producers such as
// exec.Cmd never see a short write.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keep := b.limit - b.buf.Len()
	if keep < 0 {
		keep = 0
	}
	if keep > len(p) {
		keep = len(p)
	}
	b.buf.Write(p[:keep])
	b.dropped += int64(len(p) - keep)
	return len(p), nil
}

// String returns a copy of the captured output.
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Bytes returns a copy of the captured output.
func (b *BoundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Len is the number of bytes kept.
func (b *BoundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Truncated reports whether any output was dropped.
func (b *BoundedBuffer) Truncated() bool {
	return b.Dropped() > 0
}

// Dropped is the number of bytes discarded at the limit.
func (b *BoundedBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset empties the buffer and clears the drop count.
func (b *BoundedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
	b.dropped = 0
}
