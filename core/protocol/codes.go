package protocol

// CommandCode identifies a module operation in a Command frame. The module
// echoes it as the ResponseCode of the matching Response frame.
type CommandCode uint8

const (
	CmdPing                CommandCode = 0x01 // Read firmware version; cheapest round trip
	CmdSoftReset           CommandCode = 0x02
	CmdGetError            CommandCode = 0x03
	CmdClearError          CommandCode = 0x04
	CmdStartInventory      CommandCode = 0x10
	CmdStopInventory       CommandCode = 0x11
	CmdGetBufferedCount    CommandCode = 0x12 // Guard mode: number of buffered reads
	CmdFetchBuffered       CommandCode = 0x13 // Guard mode: stream buffered reads
	CmdAntennaSelect       CommandCode = 0x20
	CmdAntennaEnable       CommandCode = 0x21
	CmdAntennaPower        CommandCode = 0x22
	CmdAntennaDwell        CommandCode = 0x23
	CmdAntennaCycles       CommandCode = 0x24
	CmdAntennaPhysicalPort CommandCode = 0x25
	CmdSetAlgorithm        CommandCode = 0x30
	CmdSetAlgorithmParam   CommandCode = 0x31
	CmdSetLinkProfile      CommandCode = 0x32
	CmdSetGuardMode        CommandCode = 0x33
	CmdTagAccess           CommandCode = 0x40
	CmdWriteRegister       CommandCode = 0x50
	CmdReadRegister        CommandCode = 0x51
)

var commandNames = map[CommandCode]string{
	CmdPing:                "ping",
	CmdSoftReset:           "soft_reset",
	CmdGetError:            "get_error",
	CmdClearError:          "clear_error",
	CmdStartInventory:      "start_inventory",
	CmdStopInventory:       "stop_inventory",
	CmdGetBufferedCount:    "get_buffered_count",
	CmdFetchBuffered:       "fetch_buffered",
	CmdAntennaSelect:       "antenna_select",
	CmdAntennaEnable:       "antenna_enable",
	CmdAntennaPower:        "antenna_power",
	CmdAntennaDwell:        "antenna_dwell",
	CmdAntennaCycles:       "antenna_cycles",
	CmdAntennaPhysicalPort: "antenna_physical_port",
	CmdSetAlgorithm:        "set_algorithm",
	CmdSetAlgorithmParam:   "set_algorithm_param",
	CmdSetLinkProfile:      "set_link_profile",
	CmdSetGuardMode:        "set_guard_mode",
	CmdTagAccess:           "tag_access",
	CmdWriteRegister:       "write_register",
	CmdReadRegister:        "read_register",
}

func (c CommandCode) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether c is part of the command vocabulary.
func (c CommandCode) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// ResponseCode identifies the command a Response frame answers. The set is
// closed: every response byte maps to exactly one code or is rejected.
type ResponseCode CommandCode

// LookupResponse maps a response code byte to its ResponseCode. Matching is
// exact; unknown bytes are reported with ok == false.
func LookupResponse(b byte) (ResponseCode, bool) {
	c := CommandCode(b)
	if !c.Known() {
		return 0, false
	}
	return ResponseCode(c), true
}

// Command returns the command this response answers.
func (r ResponseCode) Command() CommandCode {
	return CommandCode(r)
}

func (r ResponseCode) String() string {
	return CommandCode(r).String()
}

// NextState returns the state a successful response moves the link into.
func (r ResponseCode) NextState() State {
	switch CommandCode(r) {
	case CmdStartInventory:
		return StateWaitingForBegin
	case CmdFetchBuffered:
		return StateWaitingForInventory
	case CmdTagAccess:
		return StateWaitingForAccess
	case CmdSoftReset:
		return StateWaitingForReset
	default:
		return StateIdle
	}
}

// RecoversErrors reports whether the command is part of the error-clearing
// sequence. A failure on these must not trigger another clear sequence.
func (c CommandCode) RecoversErrors() bool {
	return c == CmdGetError || c == CmdClearError
}
