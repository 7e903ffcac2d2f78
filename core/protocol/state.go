// Package protocol defines the shared vocabulary of the RF module serial
// protocol: protocol states, command and response codes, and link health.
package protocol

// State is the command/response state of the link to the RF module. Exactly
// one State is current at any time.
type State uint8

const (
	// StateIdle means no operation is outstanding and a command may be sent.
	StateIdle State = iota
	// StateWaitingForResponse means a command was sent and its Response frame
	// has not arrived yet.
	StateWaitingForResponse
	// StateWaitingForBegin means the module acknowledged an operation that
	// will be bracketed by Begin/End frames.
	StateWaitingForBegin
	// StateWaitingForEnd means a Begin frame was received; Inventory frames
	// stream until the End frame.
	StateWaitingForEnd
	// StateWaitingForInventory means a buffered (guard mode) readout was
	// requested and its Inventory frames are arriving.
	StateWaitingForInventory
	// StateWaitingForAccess means a tag access was acknowledged and its
	// Access frame is pending.
	StateWaitingForAccess
	// StateWaitingForReset means a soft reset was issued and the module is
	// settling.
	StateWaitingForReset
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForResponse:
		return "waiting_for_response"
	case StateWaitingForBegin:
		return "waiting_for_begin"
	case StateWaitingForEnd:
		return "waiting_for_end"
	case StateWaitingForInventory:
		return "waiting_for_inventory"
	case StateWaitingForAccess:
		return "waiting_for_access"
	case StateWaitingForReset:
		return "waiting_for_reset"
	default:
		return "unknown"
	}
}

// Health is the communication health of the module link as judged by the
// watchdog.
type Health uint8

const (
	HealthUnknown Health = iota
	HealthGood
	HealthBad
)

func (h Health) String() string {
	switch h {
	case HealthGood:
		return "good"
	case HealthBad:
		return "bad"
	default:
		return "unknown"
	}
}

// MarshalText lets Health appear by name in JSON event payloads.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}
