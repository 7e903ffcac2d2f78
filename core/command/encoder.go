// Package command builds the Command frames the engine issues on its own:
// keep-alive pings, resets, error clearing, inventory control and the module
// initialization sequence derived from a device profile.
package command

import (
	"github.com/kabili207/smartantenna-go/core/codec"
	"github.com/kabili207/smartantenna-go/core/profile"
	"github.com/kabili207/smartantenna-go/core/protocol"
)

// Encoder builds the Command frames the engine needs. Implementations for
// other module firmwares can be injected into the engine.
type Encoder interface {
	Ping() codec.Frame
	SoftReset() codec.Frame
	GetError() codec.Frame
	ClearError() codec.Frame
	StartInventory() codec.Frame
	GetBufferedCount() codec.Frame
	FetchBuffered() codec.Frame
	// Initialize returns the sequence that configures every antenna port,
	// the singulation algorithm and its parameters, the link profile and
	// the guard mode.
	Initialize(cfg *profile.Config) []codec.Frame
}

// Singulation parameter addresses for CmdSetAlgorithmParam.
const (
	ParamStartQ uint16 = iota
	ParamMinQ
	ParamMaxQ
	ParamSession
	ParamTarget
	ParamToggleTarget
)

// Standard is the Encoder for the stock module firmware.
type Standard struct{}

var _ Encoder = Standard{}

func (Standard) Ping() codec.Frame {
	return codec.EncodeCommand(protocol.CmdPing, 0, 0)
}

func (Standard) SoftReset() codec.Frame {
	return codec.EncodeCommand(protocol.CmdSoftReset, 0, 0)
}

func (Standard) GetError() codec.Frame {
	return codec.EncodeCommand(protocol.CmdGetError, 0, 0)
}

func (Standard) ClearError() codec.Frame {
	return codec.EncodeCommand(protocol.CmdClearError, 0, 0)
}

func (Standard) StartInventory() codec.Frame {
	return codec.EncodeCommand(protocol.CmdStartInventory, 0, 0)
}

func (Standard) GetBufferedCount() codec.Frame {
	return codec.EncodeCommand(protocol.CmdGetBufferedCount, 0, 0)
}

func (Standard) FetchBuffered() codec.Frame {
	return codec.EncodeCommand(protocol.CmdFetchBuffered, 0, 0)
}

func (Standard) Initialize(cfg *profile.Config) []codec.Frame {
	var out []codec.Frame
	add := func(code protocol.CommandCode, addr uint16, value uint32) {
		out = append(out, codec.EncodeCommand(code, addr, value))
	}

	for _, a := range cfg.Antennas {
		port := uint16(a.Port)
		add(protocol.CmdAntennaSelect, port, 0)
		add(protocol.CmdAntennaEnable, port, 1)
		add(protocol.CmdAntennaPower, port, uint32(a.PowerCdBm))
		add(protocol.CmdAntennaDwell, port, uint32(a.DwellMs))
		add(protocol.CmdAntennaCycles, port, uint32(a.InventoryCycles))
		add(protocol.CmdAntennaPhysicalPort, port, uint32(a.PhysicalPort))
	}

	s := cfg.Singulation
	add(protocol.CmdSetAlgorithm, 0, s.Algorithm.ID())
	add(protocol.CmdSetAlgorithmParam, ParamStartQ, uint32(s.StartQ))
	add(protocol.CmdSetAlgorithmParam, ParamMinQ, uint32(s.MinQ))
	add(protocol.CmdSetAlgorithmParam, ParamMaxQ, uint32(s.MaxQ))
	add(protocol.CmdSetAlgorithmParam, ParamSession, uint32(s.Session))
	add(protocol.CmdSetAlgorithmParam, ParamTarget, targetValue(s.Target))
	add(protocol.CmdSetAlgorithmParam, ParamToggleTarget, boolValue(s.ToggleTarget))

	add(protocol.CmdSetLinkProfile, 0, uint32(cfg.LinkProfile))
	add(protocol.CmdSetGuardMode, 0, boolValue(cfg.GuardMode))
	return out
}

func targetValue(t string) uint32 {
	if t == "B" {
		return 1
	}
	return 0
}

func boolValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
