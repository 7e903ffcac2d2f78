package engine

import (
	"fmt"

	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/core/fault"
	"github.com/kabili207/smartantenna-go/core/protocol"
)

// handleFrame applies one validated inbound frame. It runs on the consumer
// goroutine only.
func (e *Engine) handleFrame(f codec.Frame) {
	cur := e.state.Current()
	if cur == protocol.StateWaitingForReset {
		e.log.Debug("absorbing frame during reset", "type", f.Type())
		return
	}

	switch f.Type() {
	case codec.TypeResponse:
		e.handleResponse(f, cur)
	case codec.TypeBegin:
		e.handleBegin(f, cur)
	case codec.TypeInventory:
		e.handleInventory(f, cur)
	case codec.TypeEnd:
		e.handleEnd(f, cur)
	case codec.TypeAccess:
		e.handleAccess(f, cur)
	case codec.TypeWork:
		w, err := codec.ParseWork(f)
		if err == nil {
			e.log.Debug("work report", "code", w.Code, "value", w.Value)
		}
	default:
		e.anomaly(f.Type().String(), cur)
	}
}

func (e *Engine) handleResponse(f codec.Frame, cur protocol.State) {
	resp, err := codec.ParseResponse(f)
	if err != nil {
		e.counters.Anomalies.Add(1)
		e.log.Warn("unrecognised response", "error", fault.New(fault.KindProtocol, "response", err))
		e.advance(cur, protocol.StateWaitingForResponse, protocol.StateIdle, "unrecognised response")
		return
	}

	if cur != protocol.StateWaitingForResponse {
		e.anomaly("response "+resp.Code.String(), cur)
	}

	next := resp.Code.NextState()
	cmd := resp.Code.Command()
	var followUp []codec.Frame
	if resp.Status != 0 {
		e.firmwareError(cmd.String(), uint8(cmd), resp.Status)
		if !cmd.RecoversErrors() {
			followUp = e.clearSequence()
		}
		next = protocol.StateIdle
	} else {
		switch cmd {
		case protocol.CmdGetBufferedCount:
			switch {
			case resp.Value > 0:
				e.log.Debug("fetching buffered tags", "count", resp.Value)
				followUp = append(followUp, e.cfg.Encoder.FetchBuffered())
			case e.autoRepeat.Load():
				followUp = append(followUp, e.cfg.Encoder.StartInventory())
			}
		case protocol.CmdGetError:
			e.log.Warn("module error code", "code", resp.Value)
			e.sink.Emit(event.Event{
				Kind:  event.KindFirmwareError,
				Time:  e.nowFn(),
				Code:  uint8(cmd),
				Value: resp.Value,
			})
		}
	}

	if next == protocol.StateWaitingForReset {
		e.recovery.NoteSoftReset(e.nowFn())
	}
	if !e.transition(cur, next, "response "+resp.Code.String(), followUp...) {
		e.log.Debug("state moved on before response was applied", "response", resp.Code, "dropped", len(followUp))
	}
}

func (e *Engine) handleBegin(f codec.Frame, cur protocol.State) {
	b, err := codec.ParseBegin(f)
	if err != nil {
		return
	}
	if cur != protocol.StateWaitingForBegin {
		e.log.Debug("unsolicited begin", "state", cur, "command", b.Command)
	}
	e.state.Advance(cur, protocol.StateWaitingForEnd, "begin")
}

func (e *Engine) handleInventory(f codec.Frame, cur protocol.State) {
	if cur != protocol.StateWaitingForEnd && cur != protocol.StateWaitingForInventory {
		e.anomaly("inventory", cur)
	}
	e.counters.TagReads.Add(1)
	if err := e.inventory.HandleInventory(f); err != nil {
		e.log.Debug("dropping tag read", "error", fault.New(fault.KindProtocol, "inventory", err))
	}
}

func (e *Engine) handleEnd(f codec.Frame, cur protocol.State) {
	end, err := codec.ParseEnd(f)
	if err != nil {
		return
	}
	if cur != protocol.StateWaitingForEnd && cur != protocol.StateWaitingForInventory {
		e.anomaly("end", cur)
	}
	var followUp []codec.Frame
	if end.Status != 0 {
		e.firmwareError("end", 0, end.Status)
		followUp = e.clearSequence()
	}

	switch {
	case cur == protocol.StateWaitingForEnd && e.cfg.Profile.GuardMode:
		followUp = append(followUp, e.cfg.Encoder.GetBufferedCount())
	case e.autoRepeat.Load():
		followUp = append(followUp, e.cfg.Encoder.StartInventory())
	}
	if !e.transition(cur, protocol.StateIdle, "end", followUp...) {
		e.log.Debug("state moved on before end was applied", "dropped", len(followUp))
	}
}

func (e *Engine) handleAccess(f codec.Frame, cur protocol.State) {
	a, err := codec.ParseAccess(f)
	if err != nil {
		return
	}
	e.sink.Emit(event.Event{
		Kind:   event.KindAccess,
		Time:   e.nowFn(),
		Code:   a.Op,
		Status: a.TagError,
		Data:   a.Data,
	})
	if cur != protocol.StateWaitingForAccess {
		e.anomaly("access", cur)
		return
	}
	e.state.Advance(cur, protocol.StateIdle, "access")
}

// transition moves from cur to next and queues the follow-up commands in the
// same step. If the state changed since cur was read, typically through a
// reset, nothing is queued.
func (e *Engine) transition(cur, next protocol.State, reason string, followUp ...codec.Frame) bool {
	return e.state.AdvanceThen(cur, next, reason, func() {
		e.queue.Push(followUp...)
	})
}

// advance moves to next only when the current state is want.
func (e *Engine) advance(cur, want, next protocol.State, reason string) {
	if cur == want {
		e.state.Advance(cur, next, reason)
	}
}

func (e *Engine) anomaly(what string, cur protocol.State) {
	e.counters.Anomalies.Add(1)
	fe := fault.New(fault.KindProtocol, what, fault.ErrUnexpectedFrame)
	e.log.Warn("unexpected frame", "state", cur, "error", fe)
}

// firmwareError reports a nonzero module status.
func (e *Engine) firmwareError(op string, code, status uint8) {
	e.counters.FirmwareErrs.Add(1)
	fe := fault.New(fault.KindProtocol, op, fmt.Errorf("%w: 0x%02x", fault.ErrFirmwareStatus, status))
	e.log.Warn("module reported error", "error", fe)
	e.sink.Emit(event.Event{
		Kind:   event.KindFirmwareError,
		Time:   e.nowFn(),
		Code:   code,
		Status: status,
		Error:  fe.Error(),
	})
}

// clearSequence reads and then clears the module's error register.
func (e *Engine) clearSequence() []codec.Frame {
	return []codec.Frame{e.cfg.Encoder.GetError(), e.cfg.Encoder.ClearError()}
}
