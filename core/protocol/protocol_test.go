package protocol

import "testing"

func TestLookupResponse(t *testing.T) {
	tests := []struct {
		b      byte
		want   ResponseCode
		wantOK bool
	}{
		{0x01, ResponseCode(CmdPing), true},
		{0x12, ResponseCode(CmdGetBufferedCount), true},
		{0x13, ResponseCode(CmdFetchBuffered), true},
		{0x14, 0, false},
		{0x00, 0, false},
		{0xFF, 0, false},
	}
	for _, tt := range tests {
		got, ok := LookupResponse(tt.b)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("LookupResponse(0x%02x) = %v, %v, want %v, %v", tt.b, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResponseNextState(t *testing.T) {
	tests := []struct {
		code CommandCode
		want State
	}{
		{CmdPing, StateIdle},
		{CmdStartInventory, StateWaitingForBegin},
		{CmdStopInventory, StateIdle},
		{CmdGetBufferedCount, StateIdle},
		{CmdFetchBuffered, StateWaitingForInventory},
		{CmdTagAccess, StateWaitingForAccess},
		{CmdSoftReset, StateWaitingForReset},
		{CmdSetGuardMode, StateIdle},
	}
	for _, tt := range tests {
		if got := ResponseCode(tt.code).NextState(); got != tt.want {
			t.Errorf("%v.NextState() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestRecoversErrors(t *testing.T) {
	for c := range commandNames {
		want := c == CmdGetError || c == CmdClearError
		if got := c.RecoversErrors(); got != want {
			t.Errorf("%v.RecoversErrors() = %v, want %v", c, got, want)
		}
	}
}

func TestCommandNames(t *testing.T) {
	seen := make(map[string]CommandCode)
	for c, name := range commandNames {
		if prev, ok := seen[name]; ok {
			t.Errorf("name %q used by 0x%02x and 0x%02x", name, byte(prev), byte(c))
		}
		seen[name] = c
	}
	if got := CommandCode(0xEE).String(); got == "" {
		t.Error("unknown command should still have a name")
	}
}

func TestStateString(t *testing.T) {
	if got := StateWaitingForEnd.String(); got != "waiting_for_end" {
		t.Errorf("String() = %q, want %q", got, "waiting_for_end")
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want %q", got, "unknown")
	}
}

func TestHealthMarshalText(t *testing.T) {
	b, err := HealthBad.MarshalText()
	if err != nil || string(b) != "bad" {
		t.Errorf("MarshalText() = %q, %v, want %q", b, err, "bad")
	}
}
