package codec

import "github.com/sigurn/crc16"

// CRC parameters of the module link: CRC-16 with polynomial 0x1021, processed
// MSB first from a seed of 0xFFFF (CRC-16/CCITT-FALSE). The module transmits
// the one's complement of the register, so a frame that checks out leaves the
// register at CRCResidue.
const (
	CRCPoly    uint16 = 0x1021
	CRCSeed    uint16 = 0xFFFF
	CRCResidue uint16 = 0x1D0F
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Calculate returns the CRC of the first length bytes of data.
func Calculate(data []byte, length int) uint16 {
	return crc16.Checksum(data[:length], crcTable)
}

// Check validates the CRC of the first length bytes of frame. The wire stores
// the CRC byte-swapped, so a copy has its last two bytes swapped back before
// the whole range is folded and compared with CRCResidue. frame is not
// modified.
func Check(frame []byte, length int) bool {
	if length < CRCSize || length > len(frame) {
		return false
	}
	buf := make([]byte, length)
	copy(buf, frame[:length])
	buf[length-2], buf[length-1] = buf[length-1], buf[length-2]
	return Calculate(buf, length) == CRCResidue
}

// Seal computes the CRC over all but the last two bytes of frame and stores
// its complement there in wire (byte-swapped) order.
func Seal(frame []byte) {
	n := len(frame) - CRCSize
	crc := ^Calculate(frame, n)
	frame[n] = byte(crc)
	frame[n+1] = byte(crc >> 8)
}
