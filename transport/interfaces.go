// Package transport provides the byte-stream link to the RF module.
//
// A Transport delivers raw inbound chunks to a DataHandler as they arrive,
// with no framing applied; the engine's assembler reconstructs frames.
package transport

import "context"

// Transport is the interface for module link implementations.
type Transport interface {
	// Start opens the link and begins delivering inbound data.
	// The provided context controls the read loop's lifetime.
	Start(ctx context.Context) error
	// Stop closes the link and waits for the read loop to exit. A stopped
	// transport may be started again.
	Stop() error
	// IsConnected returns true if the link is open.
	IsConnected() bool
	// SetDataHandler sets the callback for inbound bytes.
	SetDataHandler(fn DataHandler)
	// SetStateHandler sets the callback for link state changes.
	SetStateHandler(fn StateHandler)
	// Write transmits data to the module.
	Write(data []byte) error
}

// DataHandler is called from the read loop with each inbound chunk. The
// slice is only valid for the duration of the call. Handlers must not block.
type DataHandler func(data []byte)

// StateHandler is called when the transport state changes.
type StateHandler func(transport Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
