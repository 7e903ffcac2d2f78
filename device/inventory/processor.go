// Package inventory turns Inventory frames into tag database updates and
// periodically reports arrivals, departures and motion.
package inventory

import (
	"fmt"
	"log/slog"

	"github.com/kabili207/smartantenna-go/core/clock"
	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/core/profile"
	"github.com/kabili207/smartantenna-go/core/tagdb"
)

// Config configures a Processor.
type Config struct {
	// MotionThreshold is the RSSI delta in tenths of dB. Default:
	// profile.DefaultMotionThreshold.
	MotionThreshold int
	// AgeThreshold is the eviction age in seconds. Default:
	// profile.DefaultAgeThreshold.
	AgeThreshold uint32
	// Clock supplies tag timestamps. Default: system clock.
	Clock *clock.Clock
	// Sink receives tag events. Default: event.Discard.
	Sink event.Sink
	// Logger for inventory events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Processor ingests tag reads and reports tag presence.
type Processor struct {
	cfg   Config
	log   *slog.Logger
	store *tagdb.Store
	clock *clock.Clock
	sink  event.Sink
}

// NewProcessor creates a Processor with an empty tag database.
func NewProcessor(cfg Config) *Processor {
	if cfg.MotionThreshold <= 0 {
		cfg.MotionThreshold = profile.DefaultMotionThreshold
	}
	if cfg.AgeThreshold == 0 {
		cfg.AgeThreshold = profile.DefaultAgeThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Sink == nil {
		cfg.Sink = event.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg: cfg,
		log: logger.WithGroup("inventory"),
		store: tagdb.New(tagdb.Config{
			MotionThreshold: cfg.MotionThreshold,
			AgeThreshold:    cfg.AgeThreshold,
		}),
		clock: cfg.Clock,
		sink:  cfg.Sink,
	}
}

// HandleInventory records the tag read carried by an Inventory frame. Reads
// whose tag CRC failed are dropped without error.
func (p *Processor) HandleInventory(f codec.Frame) error {
	read, err := codec.ParseTagRead(f)
	if err != nil {
		return fmt.Errorf("parsing tag read: %w", err)
	}
	if !read.CRCValid {
		return nil
	}

	rec, created := p.store.Observe(tagdb.Sighting{
		EPC:     read.EPC,
		Antenna: read.Antenna,
		RSSI:    read.RSSI,
	}, p.clock.Now())

	if created {
		p.log.Debug("new tag", "epc", rec.EPC, "antenna", rec.Antenna, "rssi", rec.RSSI)
	} else if rec.Motion == tagdb.MotionInMotion {
		p.log.Debug("tag in motion", "epc", rec.EPC, "rssi", rec.RSSI)
	}
	return nil
}

// Sweep ages out stale tags and emits the pending tag events. It returns the
// number of events emitted.
func (p *Processor) Sweep() int {
	res := p.store.Sweep(p.clock.Now())

	// Fire events outside the store lock
	n := 0
	for _, rec := range res.Arrivals {
		p.emit(event.KindTagArrival, rec)
		n++
	}
	for _, rec := range res.Departures {
		p.log.Debug("tag departed", "epc", rec.EPC, "last_seen", rec.LastSeen)
		p.emit(event.KindTagDeparture, rec)
		n++
	}
	for _, rec := range res.InMotion {
		p.emit(event.KindTagInMotion, rec)
		n++
	}
	return n
}

func (p *Processor) emit(kind event.Kind, rec tagdb.Record) {
	p.sink.Emit(event.Event{
		Kind: kind,
		Time: clock.Time(p.clock.Now()),
		Tag: &event.Tag{
			EPC:     rec.EPC,
			Antenna: rec.Antenna,
			RSSI:    rec.RSSI,
			Reads:   rec.Reads,
			Shots:   rec.Shots,
		},
	})
}

// Snapshot returns copies of all tracked tags ordered by EPC.
func (p *Processor) Snapshot() []tagdb.Record {
	return p.store.Snapshot()
}

// Count returns the number of tracked tags.
func (p *Processor) Count() int {
	return p.store.Count()
}
