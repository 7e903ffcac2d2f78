// Package engine drives the RF module: it assembles inbound frames, runs the
// command/response state machine, feeds tag reads to the inventory processor
// and hands link failures to the recovery manager.
//
// The engine is one context struct shared by four goroutines. The
// transport's read loop feeds the assembler and queues validated frames
// without blocking. A single consumer applies frames to the state machine.
// The sender writes queued commands, one at a time and only while the link
// is Idle. The ticker drives the watchdog and the tag sweep.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kabili207/smartantenna-go/core/clock"
	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/command"
	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/core/fault"
	"github.com/kabili207/smartantenna-go/core/profile"
	"github.com/kabili207/smartantenna-go/core/protocol"
	"github.com/kabili207/smartantenna-go/core/tagdb"
	"github.com/kabili207/smartantenna-go/device/inventory"
	"github.com/kabili207/smartantenna-go/device/recovery"
	"github.com/kabili207/smartantenna-go/transport"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTickInterval is the period of the watchdog and sweep ticker.
	DefaultTickInterval = 500 * time.Millisecond

	// DefaultFrameQueueSize is the capacity of the inbound frame queue.
	DefaultFrameQueueSize = 256
)

var (
	ErrNotCommand = errors.New("not a command frame")
	ErrRunning    = errors.New("engine already running")

	errTransportLost = errors.New("transport disconnected")
)

// Config configures an Engine.
type Config struct {
	// Profile is the device profile. Default: profile.Default().
	Profile *profile.Config

	// Encoder builds the engine's own commands. Default: command.Standard.
	Encoder command.Encoder

	// RingCapacity is the assembler's ring buffer size in bytes.
	// Default: codec.DefaultRingCapacity.
	RingCapacity int

	// FrameQueueSize is the capacity of the inbound frame queue.
	// Default: 256.
	FrameQueueSize int

	// TickInterval is the ticker period. Default: 500ms.
	TickInterval time.Duration

	// SelfTestInterval is the watchdog interval.
	// Default: recovery.DefaultSelfTestInterval.
	SelfTestInterval time.Duration

	// ResetSettle is the wait after a SoftReset.
	// Default: recovery.DefaultResetSettle.
	ResetSettle time.Duration

	// Clock stamps tag records. Default: system clock.
	Clock *clock.Clock

	// Sink receives the outbound event stream. Default: event.Discard.
	Sink event.Sink

	// Logger for engine events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Engine is the protocol engine for one RF module.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	transport transport.Transport
	assembler *codec.Assembler
	state     *StateMachine
	queue     *CommandQueue
	frames    chan codec.Frame
	inventory *inventory.Processor
	recovery  *recovery.Manager
	sink      event.Sink
	counters  Counters

	autoRepeat       atomic.Bool
	expectDisconnect atomic.Bool
	running          atomic.Bool

	mu     sync.Mutex
	runCtx context.Context

	// nowFn allows overriding time.Now() for testing.
	nowFn func() time.Time
}

// New creates an engine for the module behind t.
func New(t transport.Transport, cfg Config) *Engine {
	if cfg.Profile == nil {
		cfg.Profile = profile.Default()
	}
	if cfg.Encoder == nil {
		cfg.Encoder = command.Standard{}
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = codec.DefaultRingCapacity
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = DefaultFrameQueueSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
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

	e := &Engine{
		cfg:       cfg,
		log:       logger.WithGroup("engine"),
		transport: t,
		assembler: codec.NewAssembler(cfg.RingCapacity),
		queue:     NewCommandQueue(),
		frames:    make(chan codec.Frame, cfg.FrameQueueSize),
		sink:      cfg.Sink,
		nowFn:     time.Now,
	}
	e.state = NewStateMachine(e.log)
	e.autoRepeat.Store(cfg.Profile.AutoRepeat)
	e.inventory = inventory.NewProcessor(inventory.Config{
		MotionThreshold: cfg.Profile.MotionThreshold,
		AgeThreshold:    cfg.Profile.AgeThreshold,
		Clock:           cfg.Clock,
		Sink:            cfg.Sink,
		Logger:          logger,
	})
	hooks := &recoveryHooks{e: e}
	e.recovery = recovery.NewManager(recovery.ManagerConfig{
		SelfTestInterval: cfg.SelfTestInterval,
		ResetSettle:      cfg.ResetSettle,
		Encoder:          cfg.Encoder,
		Profile:          cfg.Profile,
		Sink:             cfg.Sink,
		Logger:           logger,
	}, hooks, hooks)
	return e
}

// Run opens the transport, resets and initialises the module and processes
// traffic until ctx is cancelled. A transport that fails to open is retried
// by the recovery manager rather than failing Run.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	e.runCtx = ctx
	e.mu.Unlock()

	e.transport.SetDataHandler(e.feed)
	e.transport.SetStateHandler(e.onTransportEvent)

	if err := e.transport.Start(ctx); err != nil {
		e.log.Error("failed to open transport", "error", err)
		e.recovery.NoteFault(fault.New(fault.KindTransport, "open", err))
	}
	e.recovery.Start(e.nowFn())

	g.Go(func() error { return e.consume(ctx) })
	g.Go(func() error { return e.send(ctx) })
	g.Go(func() error { return e.tick(ctx) })

	err := g.Wait()

	e.expectDisconnect.Store(true)
	if stopErr := e.transport.Stop(); stopErr != nil {
		e.log.Debug("closing transport", "error", stopErr)
	}
	e.expectDisconnect.Store(false)
	e.assembler.Reset()
	e.log.Info("engine stopped")
	return err
}

// SubmitCommand validates a raw Command frame and queues it behind any
// commands already waiting.
func (e *Engine) SubmitCommand(frame []byte) error {
	f := codec.Frame(append([]byte(nil), frame...))
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid command frame: %w", err)
	}
	if f.Type() != codec.TypeCommand {
		return fmt.Errorf("%w: %s", ErrNotCommand, f.Type())
	}
	e.queue.Push(f)
	return nil
}

// StartInventory queues an inventory round. With repeat set, every finished
// round is re-issued until StopInventory.
func (e *Engine) StartInventory(repeat bool) {
	e.autoRepeat.Store(repeat)
	e.queue.Push(e.cfg.Encoder.StartInventory())
}

// StopInventory stops re-issuing inventory rounds. A round in progress runs
// to its End frame.
func (e *Engine) StopInventory() {
	e.autoRepeat.Store(false)
}

// State returns the current protocol state.
func (e *Engine) State() protocol.State {
	return e.state.Current()
}

// Health returns the link health reported by the watchdog.
func (e *Engine) Health() protocol.Health {
	return e.recovery.Health()
}

// Counters returns a snapshot of the link statistics.
func (e *Engine) Counters() CountersSnapshot {
	s := e.counters.Snapshot()
	s.Resets = e.recovery.Resets()
	s.TrackedTags = e.inventory.Count()
	return s
}

// Tags returns the tracked tags ordered by EPC.
func (e *Engine) Tags() []tagdb.Record {
	return e.inventory.Snapshot()
}

// feed runs on the transport's read loop. It never blocks on the consumer.
func (e *Engine) feed(chunk []byte) {
	frames, err := e.assembler.Feed(chunk)
	if err != nil {
		e.counters.Overflows.Add(1)
		fe := fault.New(fault.KindOverflow, "assemble", err)
		e.log.Warn("receive buffer overflow, framing restarted", "error", fe)
		e.sink.Emit(event.Event{
			Kind:  event.KindBufferOverflow,
			Time:  e.nowFn(),
			Error: fe.Error(),
		})
	}

	for _, f := range frames {
		if err := f.Validate(); err != nil {
			e.counters.FramesDropped.Add(1)
			e.log.Debug("dropping frame", "type", f.Type(), "error", fault.New(fault.KindFrame, "validate", err))
			continue
		}
		e.counters.FramesRecv.Add(1)
		select {
		case e.frames <- f:
		default:
			e.counters.FramesDropped.Add(1)
			e.log.Warn("frame queue full, dropping frame", "type", f.Type())
		}
	}
}

func (e *Engine) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-e.frames:
			e.handleFrame(f)
		}
	}
}

func (e *Engine) send(ctx context.Context) error {
	for {
		changed := e.state.Changed()
		if f, ok := e.state.acquire(e.queue.Pop); ok {
			e.write(f)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-e.queue.Signal():
		}
	}
}

func (e *Engine) write(f codec.Frame) {
	cmd, _ := codec.ParseCommand(f)
	if cmd.Code == protocol.CmdSoftReset {
		e.recovery.NoteSoftReset(e.nowFn())
	}
	if err := e.transport.Write(f); err != nil {
		fe := fault.New(fault.KindTransport, "write", err)
		e.log.Error("failed to send command", "code", cmd.Code, "error", fe)
		e.recovery.NoteFault(fe)
		return
	}
	e.counters.CommandsSent.Add(1)
	e.log.Debug("command sent", "code", cmd.Code, "address", cmd.Address, "value", cmd.Value)
}

func (e *Engine) tick(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.recovery.Tick(e.nowFn())
			e.inventory.Sweep()
		}
	}
}

func (e *Engine) onTransportEvent(_ transport.Transport, ev transport.Event) {
	switch ev {
	case transport.EventConnected:
		e.log.Info("transport connected")
	case transport.EventDisconnected:
		if e.expectDisconnect.Load() {
			return
		}
		e.log.Warn("transport disconnected")
		e.recovery.NoteFault(fault.New(fault.KindTransport, "read", errTransportLost))
	case transport.EventError:
		e.recovery.NoteFault(fault.New(fault.KindTransport, "transport", errTransportLost))
	}
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx == nil {
		return context.Background()
	}
	return e.runCtx
}

// recoveryHooks exposes the engine to the recovery manager.
type recoveryHooks struct {
	e *Engine
}

func (h *recoveryHooks) State() protocol.State {
	return h.e.state.Current()
}

func (h *recoveryHooks) ForceState(s protocol.State, reason string) {
	h.e.state.Set(s, reason)
}

func (h *recoveryHooks) ClearPending() int {
	return h.e.queue.Clear()
}

func (h *recoveryHooks) Enqueue(f codec.Frame) {
	h.e.queue.Push(f)
}

func (h *recoveryHooks) AutoRepeat() bool {
	return h.e.autoRepeat.Load()
}

func (h *recoveryHooks) FramesReceived() uint64 {
	return h.e.counters.FramesRecv.Load()
}

// Reconnect stops the transport, discards partial input and queued frames,
// and starts it again.
func (h *recoveryHooks) Reconnect() error {
	e := h.e
	e.expectDisconnect.Store(true)
	defer e.expectDisconnect.Store(false)

	if err := e.transport.Stop(); err != nil {
		e.log.Debug("closing transport", "error", err)
	}
	e.assembler.Reset()
	for drained := false; !drained; {
		select {
		case <-e.frames:
		default:
			drained = true
		}
	}

	if err := e.transport.Start(e.runContext()); err != nil {
		return fmt.Errorf("reopening transport: %w", err)
	}
	return nil
}

func (h *recoveryHooks) Send(f codec.Frame) error {
	if err := h.e.transport.Write(f); err != nil {
		return err
	}
	h.e.counters.CommandsSent.Add(1)
	return nil
}
