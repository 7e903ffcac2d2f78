package codec

import "sync"

// DefaultRingCapacity is the default size of the assembler's ring buffer.
const DefaultRingCapacity = 4096

// Assembler turns an arbitrarily chunked byte stream into complete frames.
// Scanning state survives between Feed calls, so headers and packets may
// straddle chunk boundaries. Frames are returned with their length checked
// against the type table but their CRC unchecked.
type Assembler struct {
	mu   sync.Mutex
	ring *Ring

	// waiting is set once a header and type byte sit at the ring's read
	// position and the remaining bytes of a pending-length packet have not
	// arrived yet.
	waiting bool
	pending int

	skipped uint64
}

// NewAssembler creates an assembler with a ring buffer of the given
// capacity. Capacities smaller than MaxFrameSize are raised to it.
func NewAssembler(capacity int) *Assembler {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	capacity = max(capacity, MaxFrameSize)
	return &Assembler{ring: NewRing(capacity)}
}

// Feed appends chunk and returns every frame completed by it, in stream
// order. If chunk does not fit in the ring the assembler has lost sync: all
// buffered bytes and the scan state are discarded, framing restarts from the
// new chunk (its newest Cap bytes if it is larger than the ring), and
// ErrRingBufferOverflow is returned together with any frames found after the
// restart.
func (a *Assembler) Feed(chunk []byte) ([]Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if werr := a.ring.Write(chunk); werr != nil {
		err = werr
		a.resetLocked()
		if len(chunk) > a.ring.Cap() {
			chunk = chunk[len(chunk)-a.ring.Cap():]
		}
		_ = a.ring.Write(chunk)
	}
	return a.scan(nil), err
}

func (a *Assembler) scan(out []Frame) []Frame {
	for {
		if !a.waiting {
			if !a.seekHeader() {
				return out
			}
			length := Type(a.ring.Peek(TypeOffset)).Length()
			if length == 0 {
				// Signature matched but the type byte is not ours: noise.
				a.ring.Discard(1)
				a.skipped++
				continue
			}
			a.waiting = true
			a.pending = length
		}
		if a.ring.Len() < a.pending {
			return out
		}
		out = append(out, Frame(a.ring.Read(a.pending)))
		a.waiting = false
		a.pending = 0
	}
}

// seekHeader discards bytes until the header signature followed by a type
// byte sits at the read position. It returns false when more data is needed.
func (a *Assembler) seekHeader() bool {
	for a.ring.Len() > 0 {
		if a.ring.Peek(0) != Header[0] {
			a.ring.Discard(1)
			a.skipped++
			continue
		}
		n := min(a.ring.Len(), HeaderSize)
		matched := true
		for i := 1; i < n; i++ {
			if a.ring.Peek(i) != Header[i] {
				matched = false
				break
			}
		}
		if !matched {
			a.ring.Discard(1)
			a.skipped++
			continue
		}
		// A candidate prefix at the end of the buffer; wait for the rest
		// of the signature and the type byte.
		return a.ring.Len() > TypeOffset
	}
	return false
}

// Reset discards buffered bytes and any partially assembled frame.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Assembler) resetLocked() {
	a.ring.Reset()
	a.waiting = false
	a.pending = 0
}

// Buffered returns the number of bytes held while waiting for more data.
func (a *Assembler) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ring.Len()
}

// Skipped returns the number of noise bytes discarded while scanning for a
// header.
func (a *Assembler) Skipped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipped
}
