// Package fault classifies the failures of the module link so each layer can
// decide whether to drop, correct or escalate them.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure class.
type Kind int

const (
	// KindFrame covers header-scan noise and CRC mismatches. The frame is
	// dropped; no state changes.
	KindFrame Kind = iota
	// KindProtocol covers nonzero statuses and frames unexpected for the
	// current state. Handled with corrective commands.
	KindProtocol
	// KindWatchdog means no inbound traffic across the self-test intervals.
	KindWatchdog
	// KindTransport covers open, read and write failures of the link.
	KindTransport
	// KindOverflow means the assembler's ring buffer overflowed and framing
	// was restarted.
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindProtocol:
		return "protocol"
	case KindWatchdog:
		return "watchdog"
	case KindTransport:
		return "transport"
	case KindOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

var (
	ErrNoTraffic       = errors.New("no inbound traffic")
	ErrUnexpectedFrame = errors.New("frame unexpected in current state")
	ErrFirmwareStatus  = errors.New("module reported nonzero status")
)

// Error is a classified link failure.
type Error struct {
	Err  error
	Op   string
	Kind Kind
}

// New wraps err with an operation name and a failure class.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure is handled without tearing down
// the transport session.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindFrame, KindProtocol, KindOverflow:
		return true
	default:
		return false
	}
}
