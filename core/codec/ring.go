package codec

// Ring is a fixed-capacity byte FIFO. Writes that do not fit are rejected
// whole with ErrRingBufferOverflow rather than wrapping over unread data.
type Ring struct {
	buf  []byte
	head int
	size int
}

// NewRing creates a ring buffer holding up to capacity bytes.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

// Cap returns the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of buffered bytes.
func (r *Ring) Len() int { return r.size }

// Free returns the number of bytes that can still be written.
func (r *Ring) Free() int { return len(r.buf) - r.size }

// Write appends p. If p does not fit nothing is written.
func (r *Ring) Write(p []byte) error {
	if len(p) > r.Free() {
		return ErrRingBufferOverflow
	}
	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.size += len(p)
	return nil
}

// Peek returns the byte at offset i from the read position. i must be less
// than Len.
func (r *Ring) Peek(i int) byte {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Discard drops up to n bytes from the read position.
func (r *Ring) Discard(n int) {
	n = min(n, r.size)
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
}

// Read removes n bytes and returns them in a new slice. n must not exceed
// Len.
func (r *Ring) Read(n int) []byte {
	out := make([]byte, n)
	first := copy(out, r.buf[r.head:min(r.head+n, len(r.buf))])
	copy(out[first:], r.buf[:n-first])
	r.Discard(n)
	return out
}

// Reset empties the buffer.
func (r *Ring) Reset() {
	r.head = 0
	r.size = 0
}
