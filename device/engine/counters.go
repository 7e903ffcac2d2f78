package engine

import "sync/atomic"

// Counters tracks link statistics using atomic counters. All fields are
// safe for concurrent access.
type Counters struct {
	FramesRecv    atomic.Uint64 // CRC-valid frames received
	FramesDropped atomic.Uint64 // Frames dropped for a CRC mismatch or a full frame queue
	CommandsSent  atomic.Uint64 // Commands written to the transport
	Anomalies     atomic.Uint64 // Frames unexpected for the protocol state
	Overflows     atomic.Uint64 // Assembler ring buffer overflows
	TagReads      atomic.Uint64 // Inventory frames forwarded to the processor
	FirmwareErrs  atomic.Uint64 // Nonzero module statuses
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	FramesRecv    uint64
	FramesDropped uint64
	CommandsSent  uint64
	Anomalies     uint64
	Overflows     uint64
	TagReads      uint64
	FirmwareErrs  uint64
	Resets        uint64
	TrackedTags   int
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		FramesRecv:    c.FramesRecv.Load(),
		FramesDropped: c.FramesDropped.Load(),
		CommandsSent:  c.CommandsSent.Load(),
		Anomalies:     c.Anomalies.Load(),
		Overflows:     c.Overflows.Load(),
		TagReads:      c.TagReads.Load(),
		FirmwareErrs:  c.FirmwareErrs.Load(),
	}
}
