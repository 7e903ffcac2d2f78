// Package event defines the outbound event stream of the engine: tag
// presence reports, firmware errors and link health changes consumed by the
// gateway, status and indication collaborators.
package event

import (
	"sync"
	"time"

	"github.com/kabili207/smartantenna-go/core/protocol"
)

// Kind identifies the event type.
type Kind int

const (
	KindTagArrival Kind = iota
	KindTagDeparture
	KindTagInMotion
	KindAccess
	KindFirmwareError
	KindCommHealth
	KindTransportError
	KindBufferOverflow
)

func (k Kind) String() string {
	switch k {
	case KindTagArrival:
		return "arrival"
	case KindTagDeparture:
		return "departure"
	case KindTagInMotion:
		return "in_motion"
	case KindAccess:
		return "access"
	case KindFirmwareError:
		return "firmware_error"
	case KindCommHealth:
		return "comm_health"
	case KindTransportError:
		return "transport_error"
	case KindBufferOverflow:
		return "buffer_overflow"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind appear by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Tag describes the tag an event refers to.
type Tag struct {
	EPC     string `json:"epc"`
	Antenna uint8  `json:"antenna"`
	RSSI    int16  `json:"rssi"`
	Reads   uint32 `json:"reads"`
	Shots   uint32 `json:"shots"`
}

// Event is one entry of the outbound stream. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind   Kind            `json:"kind"`
	Time   time.Time       `json:"time"`
	Tag    *Tag            `json:"tag,omitempty"`
	Code   uint8           `json:"code,omitempty"`
	Status uint8           `json:"status,omitempty"`
	Value  uint32          `json:"value,omitempty"`
	Health protocol.Health `json:"health,omitempty"`
	Data   []byte          `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Sink consumes events. Emit must not block for long; it is called from the
// engine's processing goroutines.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder keeps every emitted event. It is safe for concurrent use and is
// mostly useful in tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of the given kind.
func (r *Recorder) OfKind(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
