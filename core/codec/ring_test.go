package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestRing_WriteReadWraps(t *testing.T) {
	r := NewRing(8)
	if err := r.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	r.Discard(4)
	if err := r.Write([]byte{7, 8, 9, 10, 11}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if r.Len() != 7 || r.Free() != 1 {
		t.Fatalf("Len/Free = %d/%d, want 7/1", r.Len(), r.Free())
	}
	if r.Peek(2) != 7 {
		t.Errorf("Peek(2) = %d, want 7", r.Peek(2))
	}
	got := r.Read(7)
	if !bytes.Equal(got, []byte{5, 6, 7, 8, 9, 10, 11}) {
		t.Errorf("Read() = %v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRing_Overflow(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte{1, 2, 3})
	if err := r.Write([]byte{4, 5}); !errors.Is(err, ErrRingBufferOverflow) {
		t.Fatalf("Write() error = %v, want ErrRingBufferOverflow", err)
	}
	if r.Len() != 3 {
		t.Errorf("rejected write changed Len to %d", r.Len())
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte{1, 2, 3})
	r.Reset()
	if r.Len() != 0 || r.Free() != r.Cap() {
		t.Errorf("after Reset Len/Free = %d/%d", r.Len(), r.Free())
	}
}
