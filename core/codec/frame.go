// Package codec implements the wire format of the RF module serial link:
// CRC-16 validation, frame layout, the resumable frame assembler and the
// payload layouts of every frame type.
package codec

import (
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length of the fixed header signature.
	HeaderSize = 4
	// TypeOffset is the offset of the type byte that follows the header.
	TypeOffset = HeaderSize
	// PayloadOffset is the offset of the first payload byte.
	PayloadOffset = TypeOffset + 1
	// CRCSize is the length of the trailing CRC.
	CRCSize = 2
	// MaxFrameSize is the length of the longest frame type.
	MaxFrameSize = 36
)

// Header is the signature that starts every frame. There is no byte
// stuffing, so it may legitimately appear inside payloads.
var Header = [HeaderSize]byte{0xA5, 0x5A, 0x52, 0x46}

var (
	ErrShortFrame         = errors.New("frame shorter than its type length")
	ErrUnknownType        = errors.New("unknown frame type")
	ErrBadHeader          = errors.New("frame header mismatch")
	ErrCRCMismatch        = errors.New("frame CRC mismatch")
	ErrRingBufferOverflow = errors.New("ring buffer overflow")
	ErrUnknownResponse    = errors.New("unknown response code")
	ErrWrongType          = errors.New("unexpected frame type")
	ErrEPCTooLong         = errors.New("EPC exceeds frame capacity")
)

// Type is the frame type byte. It selects both the category of the frame and
// its fixed total length.
type Type byte

const (
	TypeCommand   Type = 0x01
	TypeResponse  Type = 0x02
	TypeBegin     Type = 0x03
	TypeInventory Type = 0x04
	TypeEnd       Type = 0x05
	TypeAccess    Type = 0x06
	TypeWork      Type = 0x07
)

// frameLengths is the authoritative type→total length table. Zero marks a
// type byte that is not part of the protocol.
var frameLengths = [256]int{
	TypeCommand:   16,
	TypeResponse:  16,
	TypeBegin:     12,
	TypeInventory: 36,
	TypeEnd:       12,
	TypeAccess:    24,
	TypeWork:      12,
}

// Length returns the total frame length for the type, header and CRC
// included, or 0 if the type is unknown.
func (t Type) Length() int {
	return frameLengths[t]
}

// Known reports whether t is a protocol frame type.
func (t Type) Known() bool {
	return frameLengths[t] != 0
}

func (t Type) String() string {
	switch t {
	case TypeCommand:
		return "command"
	case TypeResponse:
		return "response"
	case TypeBegin:
		return "begin"
	case TypeInventory:
		return "inventory"
	case TypeEnd:
		return "end"
	case TypeAccess:
		return "access"
	case TypeWork:
		return "work"
	default:
		return fmt.Sprintf("type(0x%02x)", byte(t))
	}
}

// Frame is one complete packet as it travels on the wire.
type Frame []byte

// NewFrame returns a zeroed frame of the type's length with the header and
// type byte filled in. The CRC is left zero; call Seal after writing the
// payload.
func NewFrame(t Type) Frame {
	f := make(Frame, t.Length())
	copy(f, Header[:])
	f[TypeOffset] = byte(t)
	return f
}

// Type returns the frame type byte.
func (f Frame) Type() Type {
	if len(f) <= TypeOffset {
		return 0
	}
	return Type(f[TypeOffset])
}

// Payload returns the bytes between the type byte and the CRC.
func (f Frame) Payload() []byte {
	if len(f) < PayloadOffset+CRCSize {
		return nil
	}
	return f[PayloadOffset : len(f)-CRCSize]
}

// Validate checks the header, that the length matches the type table and
// the CRC.
func (f Frame) Validate() error {
	if len(f) < PayloadOffset+CRCSize {
		return ErrShortFrame
	}
	if [HeaderSize]byte(f[:HeaderSize]) != Header {
		return ErrBadHeader
	}
	t := f.Type()
	if !t.Known() {
		return fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(t))
	}
	if len(f) != t.Length() {
		return fmt.Errorf("%w: %s frame is %d bytes, want %d", ErrShortFrame, t, len(f), t.Length())
	}
	if !Check(f, len(f)) {
		return ErrCRCMismatch
	}
	return nil
}

func (f Frame) expect(t Type) error {
	if f.Type() != t {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongType, f.Type(), t)
	}
	if len(f) != t.Length() {
		return ErrShortFrame
	}
	return nil
}
