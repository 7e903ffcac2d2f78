package codec

import (
	"errors"
	"testing"

	"github.com/kabili207/smartantenna-go/core/protocol"
)

func TestTypeLengths(t *testing.T) {
	tests := []struct {
		typ  Type
		want int
	}{
		{TypeCommand, 16},
		{TypeResponse, 16},
		{TypeBegin, 12},
		{TypeInventory, 36},
		{TypeEnd, 12},
		{TypeAccess, 24},
		{TypeWork, 12},
		{Type(0x00), 0},
		{Type(0xFF), 0},
	}
	for _, tt := range tests {
		if got := tt.typ.Length(); got != tt.want {
			t.Errorf("%v.Length() = %d, want %d", tt.typ, got, tt.want)
		}
		if tt.typ.Length() > MaxFrameSize {
			t.Errorf("%v longer than MaxFrameSize", tt.typ)
		}
	}
}

func TestFrameValidate(t *testing.T) {
	good := EncodeEnd(End{Status: 2})

	badHeader := append(Frame(nil), good...)
	badHeader[0] = 0x00

	badCRC := append(Frame(nil), good...)
	badCRC[9] ^= 0x01

	unknown := append(Frame(nil), good...)
	unknown[TypeOffset] = 0x7F

	wrongLen := append(append(Frame(nil), good...), 0x00)

	tests := []struct {
		name    string
		frame   Frame
		wantErr error
	}{
		{"valid", good, nil},
		{"short", good[:5], ErrShortFrame},
		{"bad header", badHeader, ErrBadHeader},
		{"bad crc", badCRC, ErrCRCMismatch},
		{"unknown type", unknown, ErrUnknownType},
		{"length mismatch", wrongLen, ErrShortFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	f := EncodeResponse(Response{
		Code:    protocol.ResponseCode(protocol.CmdGetBufferedCount),
		Status:  0,
		Address: 0x0010,
		Value:   42,
	})
	r, err := ParseResponse(f)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if r.Code.Command() != protocol.CmdGetBufferedCount {
		t.Errorf("Code = %v, want get_buffered_count", r.Code)
	}
	if r.Address != 0x0010 || r.Value != 42 {
		t.Errorf("Address/Value = %#x/%d", r.Address, r.Value)
	}
}

func TestParseResponse_UnknownCode(t *testing.T) {
	f := NewFrame(TypeResponse)
	f[5] = 0xEE
	Seal(f)
	if _, err := ParseResponse(f); !errors.Is(err, ErrUnknownResponse) {
		t.Errorf("ParseResponse() error = %v, want ErrUnknownResponse", err)
	}
}

func TestParse_WrongType(t *testing.T) {
	if _, err := ParseEnd(EncodeBegin(Begin{})); !errors.Is(err, ErrWrongType) {
		t.Errorf("ParseEnd(begin) error = %v, want ErrWrongType", err)
	}
	if _, err := ParseTagRead(EncodeEnd(End{})); !errors.Is(err, ErrWrongType) {
		t.Errorf("ParseTagRead(end) error = %v, want ErrWrongType", err)
	}
}

func TestParseTagRead(t *testing.T) {
	in := TagRead{
		EPC:         "E2801160600002084E1A3C5F",
		Antenna:     3,
		RSSI:        -612,
		Phase:       1800,
		Frequency:   915250,
		Temperature: -45,
		CRCValid:    true,
	}
	got, err := ParseTagRead(EncodeTagRead(in))
	if err != nil {
		t.Fatalf("ParseTagRead() error = %v", err)
	}
	if got != in {
		t.Errorf("ParseTagRead() = %+v, want %+v", got, in)
	}
}

func TestParseTagRead_TagCRCInvalid(t *testing.T) {
	got, err := ParseTagRead(EncodeTagRead(TagRead{EPC: "0102", CRCValid: false}))
	if err != nil {
		t.Fatalf("ParseTagRead() error = %v", err)
	}
	if got.CRCValid {
		t.Error("CRCValid should be false")
	}
}

func TestParseTagRead_EPCTooLong(t *testing.T) {
	f := EncodeTagRead(TagRead{EPC: "01"})
	f[17] = MaxEPCBytes + 1
	Seal(f)
	if _, err := ParseTagRead(f); !errors.Is(err, ErrEPCTooLong) {
		t.Errorf("ParseTagRead() error = %v, want ErrEPCTooLong", err)
	}
}

func TestEncodeCommand(t *testing.T) {
	f := EncodeCommand(protocol.CmdAntennaPower, 2, 3000)
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	c, err := ParseCommand(f)
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if c.Code != protocol.CmdAntennaPower || c.Address != 2 || c.Value != 3000 {
		t.Errorf("ParseCommand() = %+v", c)
	}
}

func TestParseAccess_ClampsLength(t *testing.T) {
	f := EncodeAccess(Access{Op: 2, Data: []byte{1, 2, 3}})
	f[7] = 0xFF
	Seal(f)
	a, err := ParseAccess(f)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}
	if len(a.Data) != MaxAccessData {
		t.Errorf("len(Data) = %d, want %d", len(a.Data), MaxAccessData)
	}
}
