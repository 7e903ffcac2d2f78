// Package tagdb holds the tag database of the inventory: one record per EPC,
// with debounced RSSI motion detection and age-based eviction.
//
// A record is created on the first sighting and marked New so that an
// arrival is reported once. Later sightings compare RSSI against the stored
// value; two consecutive readings beyond the motion threshold are needed to
// declare motion. Records untouched for longer than the age threshold are
// removed by Sweep.
package tagdb

import (
	"sort"
	"sync"
)

// Motion is the debounced motion state of a tag.
type Motion uint8

const (
	MotionIdle Motion = iota
	MotionPossible
	MotionInMotion
)

func (m Motion) String() string {
	switch m {
	case MotionIdle:
		return "idle"
	case MotionPossible:
		return "possible_motion"
	case MotionInMotion:
		return "in_motion"
	default:
		return "unknown"
	}
}

// Sighting is the part of a tag read the database tracks.
type Sighting struct {
	EPC     string
	Antenna uint8
	RSSI    int16 // Tenths of dB
}

// Record is the persistent entry for one EPC.
type Record struct {
	EPC       string
	Antenna   uint8
	RSSI      int16
	FirstSeen uint32
	LastSeen  uint32
	Motion    Motion
	Reads     uint32
	Shots     uint32
	New       bool
}

// Config configures a Store.
type Config struct {
	// MotionThreshold is the RSSI delta, in tenths of dB, that a reading
	// must exceed to count towards motion.
	MotionThreshold int
	// AgeThreshold is how long, in seconds, a record may go unseen before
	// Sweep evicts it.
	AgeThreshold uint32
}

// Store is the tag database. It is safe for concurrent use: the frame
// consumer observes reads while the ticker sweeps.
type Store struct {
	cfg     Config
	mu      sync.Mutex
	records map[string]*Record
}

// New creates an empty Store.
func New(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		records: make(map[string]*Record),
	}
}

// Observe records a sighting at time now and returns a copy of the updated
// record and whether it was created.
func (s *Store) Observe(sg Sighting, now uint32) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sg.EPC]
	if !ok {
		rec = &Record{
			EPC:       sg.EPC,
			Antenna:   sg.Antenna,
			RSSI:      sg.RSSI,
			FirstSeen: now,
			LastSeen:  now,
			Motion:    MotionIdle,
			Reads:     1,
			New:       true,
		}
		s.records[sg.EPC] = rec
		return *rec, true
	}

	rec.LastSeen = now
	rec.Antenna = sg.Antenna
	rec.Reads++

	exceeded := abs(int(sg.RSSI)-int(rec.RSSI)) > s.cfg.MotionThreshold
	switch rec.Motion {
	case MotionIdle:
		if exceeded {
			rec.Motion = MotionPossible
		}
	case MotionPossible:
		if exceeded {
			rec.Motion = MotionInMotion
			rec.RSSI = sg.RSSI
		} else {
			// False alarm. The new sample is discarded, not stored.
			rec.Motion = MotionIdle
		}
	case MotionInMotion:
		// Sticky until the sweep reports it.
	}
	return *rec, false
}

// SweepResult lists the records reported by one Sweep. Records are copies
// taken at sweep time, ordered by EPC.
type SweepResult struct {
	Arrivals   []Record
	Departures []Record
	InMotion   []Record
}

// Sweep evicts records older than the age threshold and collects the
// arrival, departure and in-motion reports. Each arrival is reported once;
// in-motion records are reset to idle after being reported.
func (s *Store) Sweep(now uint32) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	for epc, rec := range s.records {
		if now > rec.LastSeen && now-rec.LastSeen > s.cfg.AgeThreshold {
			if rec.New {
				rec.New = false
				res.Arrivals = append(res.Arrivals, *rec)
			}
			delete(s.records, epc)
			res.Departures = append(res.Departures, *rec)
			continue
		}
		if rec.New {
			rec.New = false
			res.Arrivals = append(res.Arrivals, *rec)
		}
		if rec.Motion == MotionInMotion {
			rec.Shots++
			rec.Motion = MotionIdle
			res.InMotion = append(res.InMotion, *rec)
		}
	}
	sortByEPC(res.Arrivals)
	sortByEPC(res.Departures)
	sortByEPC(res.InMotion)
	return res
}

// Snapshot returns copies of all records ordered by EPC.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sortByEPC(out)
	return out
}

// Count returns the number of records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func sortByEPC(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].EPC < recs[j].EPC })
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
