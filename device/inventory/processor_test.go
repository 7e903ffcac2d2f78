package inventory

import (
	"testing"

	"github.com/kabili207/smartantenna-go/core/clock"
	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/core/tagdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEPC = "E28011606000020D8A3C1B2F"

func newTestProcessor(t *testing.T) (*Processor, *clock.Clock, *event.Recorder) {
	t.Helper()
	clk := clock.NewManual(1000)
	rec := &event.Recorder{}
	p := NewProcessor(Config{
		MotionThreshold: 30,
		AgeThreshold:    10,
		Clock:           clk,
		Sink:            rec,
	})
	return p, clk, rec
}

func read(epc string, rssi int16) codec.Frame {
	return codec.EncodeTagRead(codec.TagRead{
		EPC:      epc,
		Antenna:  1,
		RSSI:     rssi,
		CRCValid: true,
	})
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(Config{})
	assert.NotNil(t, p.log)
	assert.NotNil(t, p.clock)
	assert.NotNil(t, p.sink)
	assert.Positive(t, p.cfg.MotionThreshold)
	assert.Positive(t, p.cfg.AgeThreshold)
}

// A tag seen once produces one arrival on the next sweep, then a departure
// once it has aged out.
func TestArrivalThenDeparture(t *testing.T) {
	p, clk, rec := newTestProcessor(t)

	require.NoError(t, p.HandleInventory(read(testEPC, -600)))
	assert.Equal(t, 1, p.Sweep())

	arrivals := rec.OfKind(event.KindTagArrival)
	require.Len(t, arrivals, 1)
	assert.Equal(t, testEPC, arrivals[0].Tag.EPC)
	assert.EqualValues(t, -600, arrivals[0].Tag.RSSI)

	// Repeated sweeps do not repeat the arrival.
	assert.Equal(t, 0, p.Sweep())

	clk.Advance(10)
	assert.Equal(t, 0, p.Sweep(), "age equal to threshold keeps the tag")

	clk.Advance(1)
	assert.Equal(t, 1, p.Sweep())
	departures := rec.OfKind(event.KindTagDeparture)
	require.Len(t, departures, 1)
	assert.Equal(t, testEPC, departures[0].Tag.EPC)
	assert.Equal(t, 0, p.Count())
}

// Two consecutive readings beyond the threshold are motion; a single
// outlier is a false alarm.
func TestMotionDebounce(t *testing.T) {
	p, _, rec := newTestProcessor(t)

	require.NoError(t, p.HandleInventory(read(testEPC, -600)))
	p.Sweep()

	require.NoError(t, p.HandleInventory(read(testEPC, -500))) // PossibleMotion
	require.NoError(t, p.HandleInventory(read(testEPC, -600))) // false alarm
	p.Sweep()
	assert.Empty(t, rec.OfKind(event.KindTagInMotion))

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.EqualValues(t, -600, snap[0].RSSI)
	assert.Equal(t, tagdb.MotionIdle, snap[0].Motion)

	require.NoError(t, p.HandleInventory(read(testEPC, -500)))
	require.NoError(t, p.HandleInventory(read(testEPC, -450)))
	p.Sweep()

	moving := rec.OfKind(event.KindTagInMotion)
	require.Len(t, moving, 1)
	assert.EqualValues(t, -450, moving[0].Tag.RSSI)
	assert.EqualValues(t, 1, moving[0].Tag.Shots)

	snap = p.Snapshot()
	assert.Equal(t, tagdb.MotionIdle, snap[0].Motion)
}

func TestHandleInventory_TagCRCInvalidDropped(t *testing.T) {
	p, _, rec := newTestProcessor(t)

	f := codec.EncodeTagRead(codec.TagRead{EPC: testEPC, Antenna: 1, RSSI: -600})
	require.NoError(t, p.HandleInventory(f))
	assert.Equal(t, 0, p.Count())
	p.Sweep()
	assert.Empty(t, rec.Events())
}

func TestHandleInventory_WrongType(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	err := p.HandleInventory(codec.EncodeEnd(codec.End{}))
	assert.ErrorIs(t, err, codec.ErrWrongType)
}

// A tag that appears and ages out between sweeps still gets its arrival,
// reported before the departure.
func TestUnreportedArrivalBeforeDeparture(t *testing.T) {
	p, clk, rec := newTestProcessor(t)

	require.NoError(t, p.HandleInventory(read(testEPC, -600)))
	clk.Advance(20)
	assert.Equal(t, 2, p.Sweep())

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, event.KindTagArrival, events[0].Kind)
	assert.Equal(t, event.KindTagDeparture, events[1].Kind)
}
