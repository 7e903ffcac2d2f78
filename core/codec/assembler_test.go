package codec

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/kabili207/smartantenna-go/core/protocol"
)

// testStream returns N valid frames of mixed types and their concatenation.
func testStream() ([]Frame, []byte) {
	frames := []Frame{
		EncodeBegin(Begin{Timestamp: 1000, Command: protocol.CmdStartInventory}),
		EncodeTagRead(TagRead{EPC: "300833B2DDD9014000000001", Antenna: 1, RSSI: -550, CRCValid: true}),
		EncodeTagRead(TagRead{EPC: "300833B2DDD9014000000002", Antenna: 2, RSSI: -601, CRCValid: true}),
		EncodeTagRead(TagRead{EPC: "300833B2DDD9014000000003", Antenna: 1, RSSI: -480, CRCValid: true}),
		EncodeEnd(End{Timestamp: 1250}),
		EncodeResponse(Response{Code: protocol.ResponseCode(protocol.CmdPing), Value: 0x0102}),
		EncodeAccess(Access{Op: 1, Data: []byte{0xDE, 0xAD}}),
		EncodeWork(Work{Code: 3, Value: 7}),
	}
	var stream []byte
	for _, f := range frames {
		stream = append(stream, f...)
	}
	return frames, stream
}

func assertFrames(t *testing.T, got, want []Frame) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("frame %d = % x, want % x", i, got[i], want[i])
		}
	}
}

func TestAssembler_SingleChunk(t *testing.T) {
	want, stream := testStream()
	a := NewAssembler(0)

	got, err := a.Feed(stream)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	assertFrames(t, got, want)
	if a.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", a.Buffered())
	}
}

func TestAssembler_ByteAtATime(t *testing.T) {
	want, stream := testStream()
	a := NewAssembler(0)

	var got []Frame
	for i := range stream {
		frames, err := a.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("Feed() byte %d error = %v", i, err)
		}
		got = append(got, frames...)
	}
	assertFrames(t, got, want)
}

func TestAssembler_ChunkInvariance(t *testing.T) {
	want, stream := testStream()
	rng := rand.New(rand.NewPCG(1, 2))

	for trial := range 200 {
		a := NewAssembler(128)
		var got []Frame
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.IntN(min(len(rest), 40))
			frames, err := a.Feed(rest[:n])
			if err != nil {
				t.Fatalf("trial %d: Feed() error = %v", trial, err)
			}
			got = append(got, frames...)
			rest = rest[n:]
		}
		assertFrames(t, got, want)
	}
}

func TestAssembler_HeaderStraddlesChunks(t *testing.T) {
	f := EncodeEnd(End{Status: 0})
	a := NewAssembler(0)

	var got []Frame
	for _, split := range [][]byte{f[:1], f[1:3], f[3:5], f[5:11]} {
		frames, _ := a.Feed(split)
		got = append(got, frames...)
	}
	if len(got) != 0 {
		t.Fatal("frame emitted before it was complete")
	}
	frames, _ := a.Feed(f[11:])
	assertFrames(t, frames, []Frame{f})
}

func TestAssembler_SkipsNoise(t *testing.T) {
	f := EncodeEnd(End{Status: 0})
	noise := []byte{0x00, 0xA5, 0x5A, 0x00, 0xA5, 0xA5, 0x5A, 0x52, 0x11, 0xFF}
	a := NewAssembler(0)

	got, err := a.Feed(append(noise, f...))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	assertFrames(t, got, []Frame{f})
	if a.Skipped() == 0 {
		t.Error("Skipped() should count noise bytes")
	}
}

func TestAssembler_HeaderWithUnknownType(t *testing.T) {
	f := EncodeWork(Work{Code: 1})
	bogus := append(Header[:], 0xEE)
	a := NewAssembler(0)

	got, _ := a.Feed(append(bogus, f...))
	assertFrames(t, got, []Frame{f})
}

func TestAssembler_CorruptedFrameDoesNotStall(t *testing.T) {
	bad := EncodeEnd(End{Status: 0})
	bad[7] ^= 0xFF
	good := EncodeBegin(Begin{Timestamp: 5})
	a := NewAssembler(0)

	got, _ := a.Feed(append(append(Frame(nil), bad...), good...))
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[0].Validate() == nil {
		t.Error("corrupted frame should fail validation")
	}
	if err := got[1].Validate(); err != nil {
		t.Errorf("good frame Validate() = %v", err)
	}
}

func TestAssembler_WaitsForRemainder(t *testing.T) {
	f := EncodeTagRead(TagRead{EPC: "AABB", CRCValid: true})
	a := NewAssembler(0)

	got, _ := a.Feed(f[:20])
	if len(got) != 0 {
		t.Fatalf("got %d frames from a partial packet", len(got))
	}
	if a.Buffered() != 20 {
		t.Errorf("Buffered() = %d, want 20", a.Buffered())
	}
	got, _ = a.Feed(f[20:])
	assertFrames(t, got, []Frame{f})
}

func TestAssembler_Overflow(t *testing.T) {
	a := NewAssembler(MaxFrameSize)
	f := EncodeTagRead(TagRead{EPC: "01", CRCValid: true})

	// Leave a partial inventory frame buffered, then overflow with a chunk
	// that carries a complete frame.
	if _, err := a.Feed(f[:30]); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	end := EncodeEnd(End{})
	got, err := a.Feed(end)
	if !errors.Is(err, ErrRingBufferOverflow) {
		t.Fatalf("Feed() error = %v, want ErrRingBufferOverflow", err)
	}
	assertFrames(t, got, []Frame{end})
	if a.Buffered() != 0 {
		t.Errorf("Buffered() = %d after restart, want 0", a.Buffered())
	}
}

func TestAssembler_OverflowChunkLargerThanRing(t *testing.T) {
	a := NewAssembler(MaxFrameSize)
	end := EncodeEnd(End{})
	chunk := append(bytes.Repeat([]byte{0x00}, 100), end...)

	got, err := a.Feed(chunk)
	if !errors.Is(err, ErrRingBufferOverflow) {
		t.Fatalf("Feed() error = %v, want ErrRingBufferOverflow", err)
	}
	assertFrames(t, got, []Frame{end})
}

func TestAssembler_Reset(t *testing.T) {
	f := EncodeEnd(End{})
	a := NewAssembler(0)

	a.Feed(f[:8])
	a.Reset()
	if a.Buffered() != 0 {
		t.Fatalf("Buffered() = %d after Reset, want 0", a.Buffered())
	}
	// The tail of the discarded frame is noise now.
	got, _ := a.Feed(append(append(Frame(nil), f[8:]...), f...))
	assertFrames(t, got, []Frame{f})
}
