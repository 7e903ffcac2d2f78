package engine

import (
	"log/slog"
	"sync"

	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/protocol"
)

// StateMachine holds the protocol state. Every write holds mu. Besides frame
// handling, the sender writes it when taking a command from Idle and the
// recovery manager forces states during a reset cycle. Frame handling only
// writes through Advance and AdvanceThen, which compare against the state the
// frame was read in, so a forced reset wins over a frame handled concurrently.
type StateMachine struct {
	log     *slog.Logger
	mu      sync.Mutex
	cur     protocol.State
	changed chan struct{}
}

// NewStateMachine creates a state machine in Idle.
func NewStateMachine(log *slog.Logger) *StateMachine {
	return &StateMachine{
		log:     log,
		cur:     protocol.StateIdle,
		changed: make(chan struct{}),
	}
}

// Current returns the current state.
func (s *StateMachine) Current() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Changed returns a channel that is closed on the next transition.
func (s *StateMachine) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Set transitions to next. Setting the current state is a no-op.
func (s *StateMachine) Set(next protocol.State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(next, reason)
}

func (s *StateMachine) setLocked(next protocol.State, reason string) {
	if s.cur == next {
		return
	}
	s.log.Debug("state transition", "from", s.cur, "to", next, "reason", reason)
	s.cur = next
	close(s.changed)
	s.changed = make(chan struct{})
}

// acquire pops the next command and enters the state awaiting its reply,
// atomically and only while Idle. A SoftReset enters WaitingForReset.
func (s *StateMachine) acquire(pop func() codec.Frame) (codec.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != protocol.StateIdle {
		return nil, false
	}
	f := pop()
	if f == nil {
		return nil, false
	}

	next := protocol.StateWaitingForResponse
	if cmd, err := codec.ParseCommand(f); err == nil && cmd.Code == protocol.CmdSoftReset {
		next = protocol.StateWaitingForReset
	}
	s.setLocked(next, "command sent")
	return f, true
}

// Advance moves from to next only if the state is still from. It reports
// whether the transition happened.
func (s *StateMachine) Advance(from, next protocol.State, reason string) bool {
	return s.AdvanceThen(from, next, reason, nil)
}

// AdvanceThen is Advance, additionally running fn under the state lock when
// the transition happens. The sender cannot acquire in the new state until fn
// returns.
func (s *StateMachine) AdvanceThen(from, next protocol.State, reason string, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != from {
		return false
	}
	s.setLocked(next, reason)
	if fn != nil {
		fn()
	}
	return true
}
