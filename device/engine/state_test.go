package engine

import (
	"log/slog"
	"testing"

	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/protocol"
)

func TestStateMachine_ChangedClosedOnTransition(t *testing.T) {
	s := NewStateMachine(slog.Default())
	ch := s.Changed()

	s.Set(protocol.StateIdle, "noop")
	select {
	case <-ch:
		t.Fatal("Changed closed without a transition")
	default:
	}

	s.Set(protocol.StateWaitingForBegin, "test")
	select {
	case <-ch:
	default:
		t.Fatal("Changed not closed after transition")
	}
	if got := s.Current(); got != protocol.StateWaitingForBegin {
		t.Errorf("Current() = %v, want %v", got, protocol.StateWaitingForBegin)
	}
}

func TestStateMachine_AcquireOnlyWhenIdle(t *testing.T) {
	tests := []struct {
		name      string
		start     protocol.State
		frame     codec.Frame
		wantOK    bool
		wantState protocol.State
	}{
		{"idle command", protocol.StateIdle, cmd(protocol.CmdPing), true, protocol.StateWaitingForResponse},
		{"idle reset", protocol.StateIdle, cmd(protocol.CmdSoftReset), true, protocol.StateWaitingForReset},
		{"idle empty queue", protocol.StateIdle, nil, false, protocol.StateIdle},
		{"busy", protocol.StateWaitingForEnd, cmd(protocol.CmdPing), false, protocol.StateWaitingForEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStateMachine(slog.Default())
			s.Set(tt.start, "test")
			popped := false
			f, ok := s.acquire(func() codec.Frame {
				popped = true
				return tt.frame
			})
			if ok != tt.wantOK {
				t.Errorf("acquire() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && f == nil {
				t.Error("acquire() returned no frame")
			}
			if tt.start != protocol.StateIdle && popped {
				t.Error("queue popped while busy")
			}
			if got := s.Current(); got != tt.wantState {
				t.Errorf("Current() = %v, want %v", got, tt.wantState)
			}
		})
	}
}

func TestStateMachine_AdvanceThen(t *testing.T) {
	s := NewStateMachine(slog.Default())
	s.Set(protocol.StateWaitingForEnd, "test")

	ran := false
	if !s.AdvanceThen(protocol.StateWaitingForEnd, protocol.StateIdle, "end", func() { ran = true }) {
		t.Fatal("AdvanceThen() from the current state = false")
	}
	if !ran {
		t.Error("fn not run on a successful transition")
	}

	ran = false
	s.Set(protocol.StateWaitingForReset, "reset")
	if s.AdvanceThen(protocol.StateWaitingForEnd, protocol.StateIdle, "stale end", func() { ran = true }) {
		t.Error("AdvanceThen() from a stale state = true")
	}
	if ran {
		t.Error("fn run although the state had moved on")
	}
	if got := s.Current(); got != protocol.StateWaitingForReset {
		t.Errorf("Current() = %v, want %v", got, protocol.StateWaitingForReset)
	}
}
