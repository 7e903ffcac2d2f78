package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/kabili207/smartantenna-go/core/protocol"
)

// Command is the decoded body of a Command frame.
type Command struct {
	Code    protocol.CommandCode
	Address uint16
	Value   uint32
}

// EncodeCommand builds a sealed Command frame.
func EncodeCommand(code protocol.CommandCode, address uint16, value uint32) Frame {
	f := NewFrame(TypeCommand)
	f[5] = byte(code)
	binary.BigEndian.PutUint16(f[6:8], address)
	binary.BigEndian.PutUint32(f[8:12], value)
	Seal(f)
	return f
}

// ParseCommand decodes a Command frame.
func ParseCommand(f Frame) (Command, error) {
	if err := f.expect(TypeCommand); err != nil {
		return Command{}, err
	}
	return Command{
		Code:    protocol.CommandCode(f[5]),
		Address: binary.BigEndian.Uint16(f[6:8]),
		Value:   binary.BigEndian.Uint32(f[8:12]),
	}, nil
}

// Response is the decoded body of a Response frame.
type Response struct {
	Code    protocol.ResponseCode
	Status  uint8
	Address uint16
	Value   uint32
}

// EncodeResponse builds a sealed Response frame, as the module would send it.
func EncodeResponse(r Response) Frame {
	f := NewFrame(TypeResponse)
	f[5] = byte(r.Code)
	f[6] = r.Status
	binary.BigEndian.PutUint16(f[7:9], r.Address)
	binary.BigEndian.PutUint32(f[9:13], r.Value)
	Seal(f)
	return f
}

// ParseResponse decodes a Response frame. Codes outside the closed response
// enumeration are rejected with ErrUnknownResponse.
func ParseResponse(f Frame) (Response, error) {
	if err := f.expect(TypeResponse); err != nil {
		return Response{}, err
	}
	code, ok := protocol.LookupResponse(f[5])
	if !ok {
		return Response{}, fmt.Errorf("%w: 0x%02x", ErrUnknownResponse, f[5])
	}
	return Response{
		Code:    code,
		Status:  f[6],
		Address: binary.BigEndian.Uint16(f[7:9]),
		Value:   binary.BigEndian.Uint32(f[9:13]),
	}, nil
}

// Begin marks the start of a module operation.
type Begin struct {
	Timestamp uint32 // Module uptime in milliseconds
	Command   protocol.CommandCode
}

// EncodeBegin builds a sealed Begin frame.
func EncodeBegin(b Begin) Frame {
	f := NewFrame(TypeBegin)
	binary.BigEndian.PutUint32(f[5:9], b.Timestamp)
	f[9] = byte(b.Command)
	Seal(f)
	return f
}

// ParseBegin decodes a Begin frame. The CRC is not checked.
func ParseBegin(f Frame) (Begin, error) {
	if err := f.expect(TypeBegin); err != nil {
		return Begin{}, err
	}
	return Begin{
		Timestamp: binary.BigEndian.Uint32(f[5:9]),
		Command:   protocol.CommandCode(f[9]),
	}, nil
}

// End marks the completion of a module operation. A nonzero Status is a
// firmware error.
type End struct {
	Timestamp uint32
	Status    uint8
}

// EncodeEnd builds a sealed End frame.
func EncodeEnd(e End) Frame {
	f := NewFrame(TypeEnd)
	binary.BigEndian.PutUint32(f[5:9], e.Timestamp)
	f[9] = e.Status
	Seal(f)
	return f
}

// ParseEnd decodes an End frame. The CRC is not checked.
func ParseEnd(f Frame) (End, error) {
	if err := f.expect(TypeEnd); err != nil {
		return End{}, err
	}
	return End{
		Timestamp: binary.BigEndian.Uint32(f[5:9]),
		Status:    f[9],
	}, nil
}

// MaxAccessData is the number of data bytes an Access frame can carry.
const MaxAccessData = 14

// Access is the result of a tag access (read/write of tag memory).
type Access struct {
	Op       uint8
	TagError uint8
	Data     []byte
}

// EncodeAccess builds a sealed Access frame. Data beyond MaxAccessData
// bytes is truncated.
func EncodeAccess(a Access) Frame {
	f := NewFrame(TypeAccess)
	f[5] = a.Op
	f[6] = a.TagError
	n := copy(f[8:8+MaxAccessData], a.Data)
	f[7] = byte(n)
	Seal(f)
	return f
}

// ParseAccess decodes an Access frame. A length byte larger than
// MaxAccessData is clamped.
func ParseAccess(f Frame) (Access, error) {
	if err := f.expect(TypeAccess); err != nil {
		return Access{}, err
	}
	n := min(int(f[7]), MaxAccessData)
	data := make([]byte, n)
	copy(data, f[8:8+n])
	return Access{Op: f[5], TagError: f[6], Data: data}, nil
}

// Work is an unsolicited module status report.
type Work struct {
	Code  uint8
	Value uint32
}

// EncodeWork builds a sealed Work frame.
func EncodeWork(w Work) Frame {
	f := NewFrame(TypeWork)
	f[5] = w.Code
	binary.BigEndian.PutUint32(f[6:10], w.Value)
	Seal(f)
	return f
}

// ParseWork decodes a Work frame. The CRC is not checked.
func ParseWork(f Frame) (Work, error) {
	if err := f.expect(TypeWork); err != nil {
		return Work{}, err
	}
	return Work{Code: f[5], Value: binary.BigEndian.Uint32(f[6:10])}, nil
}
