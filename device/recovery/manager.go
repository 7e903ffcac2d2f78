// Package recovery keeps the RF module reachable and initialised.
//
// The Manager runs a watchdog over inbound traffic once per self-test
// interval. A quiet idle link is sent a Ping; two consecutive silent
// intervals mark the link health Bad and trigger a reset cycle: reopen the
// transport, drop pending commands, send SoftReset and wait for the module
// to settle. Once settled the initialization sequence derived from the
// device profile is replayed and, if configured, inventory restarted.
//
// Transport failures reported by the engine trigger the same cycle on the
// next Tick. The engine boots through it too, without the reconnect.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/command"
	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/core/fault"
	"github.com/kabili207/smartantenna-go/core/profile"
	"github.com/kabili207/smartantenna-go/core/protocol"
)

const (
	// DefaultSelfTestInterval is the default watchdog interval.
	DefaultSelfTestInterval = 10 * time.Second

	// DefaultResetSettle is how long the module is given to come back
	// after a SoftReset before it is reinitialised.
	DefaultResetSettle = 2 * time.Second

	// silentLimit is the number of consecutive silent intervals after which
	// the link is considered dead.
	silentLimit = 2
)

// Protocol is the view of the protocol engine the Manager drives.
type Protocol interface {
	// State returns the current protocol state.
	State() protocol.State
	// ForceState overrides the protocol state.
	ForceState(s protocol.State, reason string)
	// ClearPending drops queued outbound commands and returns how many.
	ClearPending() int
	// Enqueue appends a command to the outbound queue.
	Enqueue(f codec.Frame)
	// AutoRepeat reports whether inventory rounds are restarted
	// automatically.
	AutoRepeat() bool
	// FramesReceived returns the count of CRC-valid frames received.
	FramesReceived() uint64
}

// Link is the view of the transport the Manager drives.
type Link interface {
	// Reconnect closes and reopens the transport, flushing partial input.
	Reconnect() error
	// Send writes a frame directly, bypassing the command queue.
	Send(f codec.Frame) error
}

// ManagerConfig configures a recovery Manager.
type ManagerConfig struct {
	// SelfTestInterval is the watchdog interval. Default: 10 seconds.
	SelfTestInterval time.Duration

	// ResetSettle is the wait after SoftReset. Default: 2 seconds.
	ResetSettle time.Duration

	// Encoder builds the Ping, SoftReset and initialization commands.
	// Default: command.Standard.
	Encoder command.Encoder

	// Profile is replayed into the module after every reset. Default:
	// profile.Default().
	Profile *profile.Config

	// Sink receives comm_health and transport_error events.
	Sink event.Sink

	// Logger for recovery events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Manager runs the watchdog and the reset cycle. Tick must be called from a
// single goroutine; the other methods are safe for concurrent use.
type Manager struct {
	cfg   ManagerConfig
	log   *slog.Logger
	proto Protocol
	link  Link

	mu       sync.Mutex
	health   protocol.Health
	settleAt time.Time
	settling bool

	// Owned by the Tick goroutine.
	lastCheck       time.Time
	lastFrames      uint64
	silent          int
	reconnectFailed bool

	faultMu  sync.Mutex
	faultErr error
	faulted  atomic.Bool
	resets   atomic.Uint64
}

// NewManager creates a recovery Manager for the given engine and link.
func NewManager(cfg ManagerConfig, proto Protocol, link Link) *Manager {
	if cfg.SelfTestInterval <= 0 {
		cfg.SelfTestInterval = DefaultSelfTestInterval
	}
	if cfg.ResetSettle <= 0 {
		cfg.ResetSettle = DefaultResetSettle
	}
	if cfg.Encoder == nil {
		cfg.Encoder = command.Standard{}
	}
	if cfg.Profile == nil {
		cfg.Profile = profile.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = event.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:   cfg,
		log:   logger.WithGroup("recovery"),
		proto: proto,
		link:  link,
	}
}

// Start boots the module through a reset cycle without reopening the
// transport.
func (m *Manager) Start(now time.Time) {
	m.lastCheck = now
	m.log.Info("resetting module")
	m.reset(now, false)
}

// Tick advances the watchdog and the settle timer.
func (m *Manager) Tick(now time.Time) {
	state := m.proto.State()

	if state == protocol.StateWaitingForReset {
		if at, ok := m.settleDeadline(); ok && !now.Before(at) {
			m.completeReset(now)
			return
		}
	}

	if m.faulted.Swap(false) {
		m.log.Warn("transport fault, resetting module", "error", m.lastFault())
		m.setHealth(now, protocol.HealthBad)
		m.reset(now, true)
		return
	}

	if now.Sub(m.lastCheck) < m.cfg.SelfTestInterval {
		return
	}
	m.lastCheck = now

	if m.reconnectFailed {
		m.log.Info("retrying module reset")
		m.reset(now, true)
		return
	}
	m.selfTest(now, state)
}

func (m *Manager) selfTest(now time.Time, state protocol.State) {
	frames := m.proto.FramesReceived()
	if frames != m.lastFrames {
		m.lastFrames = frames
		m.silent = 0
		m.setHealth(now, protocol.HealthGood)
		return
	}

	m.silent++
	if m.silent < silentLimit {
		if state == protocol.StateIdle && !m.proto.AutoRepeat() {
			m.log.Debug("link quiet, sending ping")
			m.proto.Enqueue(m.cfg.Encoder.Ping())
		}
		return
	}

	m.setHealth(now, protocol.HealthBad)
	if _, settling := m.settleDeadline(); state == protocol.StateWaitingForReset && settling {
		return
	}
	fe := fault.New(fault.KindWatchdog, "self test",
		fmt.Errorf("%w for %d intervals", fault.ErrNoTraffic, m.silent))
	if state == protocol.StateWaitingForEnd {
		m.log.Warn("missed end frame, resetting module", "error", fe)
	} else {
		m.log.Warn("module silent, resetting", "state", state, "error", fe)
	}
	m.cfg.Sink.Emit(event.Event{
		Kind:  event.KindTransportError,
		Time:  now,
		Error: fe.Error(),
	})
	m.reset(now, true)
}

// reset forces WaitingForReset first so the sender holds off while the
// link is reopened and the SoftReset is written directly.
func (m *Manager) reset(now time.Time, reconnect bool) {
	m.clearSettle()
	m.proto.ForceState(protocol.StateWaitingForReset, "module reset")
	if n := m.proto.ClearPending(); n > 0 {
		m.log.Debug("dropped pending commands", "count", n)
	}

	if reconnect {
		if err := m.link.Reconnect(); err != nil {
			m.fail(now, "reconnect", err)
			return
		}
	}
	if err := m.link.Send(m.cfg.Encoder.SoftReset()); err != nil {
		m.fail(now, "soft reset", err)
		return
	}

	m.reconnectFailed = false
	m.silent = 0
	m.lastFrames = m.proto.FramesReceived()
	m.resets.Add(1)
	m.NoteSoftReset(now)
}

func (m *Manager) fail(now time.Time, op string, err error) {
	m.reconnectFailed = true
	fe := fault.New(fault.KindTransport, op, err)
	m.log.Error("module reset failed", "error", fe)
	m.cfg.Sink.Emit(event.Event{
		Kind:  event.KindTransportError,
		Time:  now,
		Error: fe.Error(),
	})
}

// completeReset replays the initialization sequence. Commands queued while
// the module was settling are dropped so the sequence goes out first.
func (m *Manager) completeReset(now time.Time) {
	m.clearSettle()
	if n := m.proto.ClearPending(); n > 0 {
		m.log.Warn("dropped commands queued during reset", "count", n)
	}

	seq := m.cfg.Encoder.Initialize(m.cfg.Profile)
	for _, f := range seq {
		m.proto.Enqueue(f)
	}
	if m.proto.AutoRepeat() {
		m.proto.Enqueue(m.cfg.Encoder.StartInventory())
	}
	m.proto.ForceState(protocol.StateIdle, "reset settled")

	m.lastCheck = now
	m.lastFrames = m.proto.FramesReceived()
	m.silent = 0
	m.log.Info("module reset complete", "init_commands", len(seq))
}

// NoteSoftReset arms the settle timer. The engine calls it whenever the
// protocol enters WaitingForReset.
func (m *Manager) NoteSoftReset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleAt = now.Add(m.cfg.ResetSettle)
	m.settling = true
}

// NoteFault records a link failure. Failures that are not recoverable in
// place, including unclassified errors, start a reset cycle on the next
// Tick.
func (m *Manager) NoteFault(err error) {
	if err == nil {
		return
	}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Recoverable() {
		return
	}
	m.faultMu.Lock()
	m.faultErr = err
	m.faultMu.Unlock()
	m.faulted.Store(true)
}

func (m *Manager) lastFault() error {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	return m.faultErr
}

// Health returns the current link health.
func (m *Manager) Health() protocol.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// Resets returns the number of SoftResets issued.
func (m *Manager) Resets() uint64 {
	return m.resets.Load()
}

func (m *Manager) setHealth(now time.Time, h protocol.Health) {
	m.mu.Lock()
	changed := m.health != h
	m.health = h
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Info("link health changed", "health", h)
	m.cfg.Sink.Emit(event.Event{
		Kind:   event.KindCommHealth,
		Time:   now,
		Health: h,
	})
}

func (m *Manager) settleDeadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settleAt, m.settling
}

func (m *Manager) clearSettle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settling = false
}
