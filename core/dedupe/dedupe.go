// Package dedupe remembers recently seen messages so that redeliveries can
// be dropped.
//
// Messages are identified by an 8-byte truncated SHA-256 over their parts,
// kept in a fixed-size circular buffer. Once the buffer is full the oldest
// entry is forgotten.
package dedupe

import (
	"bytes"
	"crypto/sha256"
	"sync"
)

const (
	// DefaultCapacity is the default number of remembered messages.
	DefaultCapacity = 64
	// HashSize is the truncated SHA-256 size used as message identity.
	HashSize = 8
)

// Window tracks the most recently seen messages. It is safe for concurrent
// use.
type Window struct {
	mu     sync.Mutex
	hashes []byte // circular buffer of HashSize-byte hashes
	max    int
	next   int
	filled int
}

// New creates a Window with the default capacity.
func New() *Window {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Window remembering up to n messages.
func NewWithCapacity(n int) *Window {
	if n <= 0 {
		n = DefaultCapacity
	}
	return &Window{
		hashes: make([]byte, n*HashSize),
		max:    n,
	}
}

// HasSeen reports whether the message made of parts is in the window. If
// not, it is recorded and false is returned.
func (w *Window) HasSeen(parts ...[]byte) bool {
	hash := Hash(parts...)

	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.filled {
		offset := i * HashSize
		if bytes.Equal(hash[:], w.hashes[offset:offset+HashSize]) {
			return true
		}
	}

	offset := w.next * HashSize
	copy(w.hashes[offset:offset+HashSize], hash[:])
	w.next = (w.next + 1) % w.max
	w.filled = min(w.filled+1, w.max)
	return false
}

// Clear forgets every message.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.hashes)
	w.next = 0
	w.filled = 0
}

// Hash computes the identity of a message. Each part is length-prefixed so
// that different splits of the same bytes hash differently.
func Hash(parts ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, p := range parts {
		n := len(p)
		h.Write([]byte{byte(n >> 8), byte(n)})
		h.Write(p)
	}
	sum := h.Sum(nil)
	var result [HashSize]byte
	copy(result[:], sum[:HashSize])
	return result
}
