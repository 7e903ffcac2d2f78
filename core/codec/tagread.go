package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxEPCBytes is the longest EPC an Inventory frame can carry.
const MaxEPCBytes = 16

const flagTagCRCValid = 0x01

// TagRead is one tag sighting decoded from an Inventory frame.
type TagRead struct {
	EPC         string // Upper-case hex
	Antenna     uint8
	RSSI        int16 // Tenths of dB
	Phase       uint16
	Frequency   uint32 // kHz
	Temperature int16  // Tenths of a degree Celsius
	// CRCValid is the module's verdict on the tag's own response CRC. It is
	// unrelated to the frame CRC.
	CRCValid bool
}

// ParseTagRead decodes an Inventory frame.
func ParseTagRead(f Frame) (TagRead, error) {
	if err := f.expect(TypeInventory); err != nil {
		return TagRead{}, err
	}
	n := int(f[17])
	if n > MaxEPCBytes {
		return TagRead{}, fmt.Errorf("%w: %d bytes", ErrEPCTooLong, n)
	}
	return TagRead{
		EPC:         strings.ToUpper(hex.EncodeToString(f[18 : 18+n])),
		Antenna:     f[5],
		RSSI:        int16(binary.BigEndian.Uint16(f[6:8])),
		Phase:       binary.BigEndian.Uint16(f[8:10]),
		Frequency:   binary.BigEndian.Uint32(f[10:14]),
		Temperature: int16(binary.BigEndian.Uint16(f[14:16])),
		CRCValid:    f[16]&flagTagCRCValid != 0,
	}, nil
}

// EncodeTagRead builds a sealed Inventory frame. EPC must be hex; invalid or
// over-long EPCs are truncated to what decodes and fits.
func EncodeTagRead(r TagRead) Frame {
	f := NewFrame(TypeInventory)
	f[5] = r.Antenna
	binary.BigEndian.PutUint16(f[6:8], uint16(r.RSSI))
	binary.BigEndian.PutUint16(f[8:10], r.Phase)
	binary.BigEndian.PutUint32(f[10:14], r.Frequency)
	binary.BigEndian.PutUint16(f[14:16], uint16(r.Temperature))
	if r.CRCValid {
		f[16] = flagTagCRCValid
	}
	epc, _ := hex.DecodeString(r.EPC)
	f[17] = byte(copy(f[18:18+MaxEPCBytes], epc))
	Seal(f)
	return f
}
