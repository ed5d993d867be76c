package protocol

import "fmt"

// AA55 frame constants
const (
	FrameMagic1       = 0xAA
	FrameMagic2       = 0x55
	ObfuscationMarker = 0xDA // marks an XOR-masked notification

	CommandFrameSize = 8  // outbound command, also echoed back verbatim
	ShortStatusSize  = 13 // short status frame with trailing checksum
	LongStatusSize   = 17 // minimum long status frame
	ExtStatusSize    = 34 // newer firmware, extra tenths temperature field
)

// Legacy frame constants (0x76 header format)
const (
	LegacyHeader    = 0x76
	LegacyFrameSize = 9 // fixed outbound size, data padded with zeros
	LegacyStatusMin = 8 // minimum inbound status length
)

// CommandID identifies a logical device command. The first four values are
// the wire command bytes of the AA55 format. CmdSetTemp and CmdSetFan carry
// the legacy wire type bytes; the AA55 format has no distinct commands for
// them (its shared value register covers temperature, and it has no fan
// command at all).
type CommandID byte

const (
	CmdGetStatus CommandID = 0x01
	CmdSetMode   CommandID = 0x02
	CmdPower     CommandID = 0x03
	CmdSetValue  CommandID = 0x04 // target level or temperature, run mode decides

	CmdSetTemp CommandID = 0x18 // legacy strategy only
	CmdSetFan  CommandID = 0x19 // legacy strategy only
)

// Legacy wire type bytes (frame byte 1)
const (
	LegacyCmdPower  = 0x16
	LegacyCmdStatus = 0x17
	LegacyCmdTemp   = 0x18
	LegacyCmdFan    = 0x19
)

// String returns a human-readable name for the command
func (c CommandID) String() string {
	switch c {
	case CmdGetStatus:
		return "get_status"
	case CmdSetMode:
		return "set_mode"
	case CmdPower:
		return "power"
	case CmdSetValue:
		return "set_value"
	case CmdSetTemp:
		return "set_temp"
	case CmdSetFan:
		return "set_fan"
	default:
		return fmt.Sprintf("CommandID(0x%02x)", byte(c))
	}
}

// Device ranges enforced before any write reaches the wire
const (
	MinTemperature = 8  // °C
	MaxTemperature = 36 // °C
	MinLevel       = 1
	MaxLevel       = 10
	MinFanSpeed    = 1
	MaxFanSpeed    = 5
	MinRunMode     = 0
	MaxRunMode     = 2
)

// DefaultPassword is the factory PIN on every observed control box.
const DefaultPassword uint16 = 1234

// AuthState carries the device PIN used to build command frames. It is
// passed explicitly into EncodeCommand so that sessions against different
// devices never share password state.
type AuthState struct {
	Password uint16
}

// RunState is the device-reported operating phase (long status byte 3).
type RunState byte

const (
	RunStateOff RunState = iota
	RunStateStarting
	RunStateIgnition
	RunStateHeating
	RunStateShuttingDown
	RunStateStandby
)

// String returns a human-readable name for the run state
func (s RunState) String() string {
	switch s {
	case RunStateOff:
		return "off"
	case RunStateStarting:
		return "starting"
	case RunStateIgnition:
		return "ignition"
	case RunStateHeating:
		return "heating"
	case RunStateShuttingDown:
		return "shutting_down"
	case RunStateStandby:
		return "standby"
	default:
		return fmt.Sprintf("RunState(%d)", byte(s))
	}
}

// Active reports whether the burner is doing anything. Standby counts as
// off: the box is powered but not running.
func (s RunState) Active() bool {
	return s >= RunStateStarting && s <= RunStateShuttingDown
}

// MessageKind classifies a decoded inbound frame. The wire format carries
// no type byte; frames are classified by length after unmasking.
type MessageKind int

const (
	KindStatus MessageKind = iota
	KindCommandEcho
)

// String returns a human-readable name for the message kind
func (k MessageKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindCommandEcho:
		return "command_echo"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

// Message represents a decoded inbound frame. Concrete types are *Status
// and *CommandEcho; callers dispatch with a type switch.
type Message interface {
	Kind() MessageKind
	String() string
}

// Status is a decoded status frame.
type Status struct {
	RunState           RunState
	ErrorCode          byte    // device fault code, 0 = no fault
	RunMode            byte    // 0/1 = level mode, 2 = thermostat mode
	TargetTemperature  byte    // °C, meaningful in thermostat mode
	TargetLevel        byte    // power level, always within [1,10]
	FanSpeed           byte    // legacy frames only, 0 otherwise
	RoomTemperature    float64 // °C
	ChamberTemperature float64 // °C, combustion chamber/case sensor
	Voltage            float64 // supply volts, 0 when the frame carries none
	Raw                []byte  // unmasked frame bytes for debugging
}

func (s *Status) Kind() MessageKind { return KindStatus }

// On reports whether the heater should be presented as switched on.
func (s *Status) On() bool { return s.RunState.Active() }

func (s *Status) String() string {
	return fmt.Sprintf("Status{state=%s, mode=%d, level=%d, target=%d°C, room=%.1f°C, chamber=%.1f°C, voltage=%.1fV, err=0x%02x}",
		s.RunState, s.RunMode, s.TargetLevel, s.TargetTemperature,
		s.RoomTemperature, s.ChamberTemperature, s.Voltage, s.ErrorCode)
}

// CommandEcho is an 8-byte command frame reflected back by the device.
// Receiving one while waiting for a status response means the notification
// stream delivered the echo of a just-issued command instead; callers
// should re-request status.
type CommandEcho struct {
	CommandID CommandID
	DataLo    byte
	DataHi    byte
	Raw       []byte
}

func (e *CommandEcho) Kind() MessageKind { return KindCommandEcho }

func (e *CommandEcho) String() string {
	return fmt.Sprintf("CommandEcho{cmd=%s, data=0x%02x 0x%02x}",
		e.CommandID, e.DataLo, e.DataHi)
}

// clampLevel forces a level into the valid device range
func clampLevel(v byte) byte {
	if v < MinLevel {
		return MinLevel
	}
	if v > MaxLevel {
		return MaxLevel
	}
	return v
}

// clampTemperature forces a temperature into the valid device range
func clampTemperature(v byte) byte {
	if v < MinTemperature {
		return MinTemperature
	}
	if v > MaxTemperature {
		return MaxTemperature
	}
	return v
}

// sumChecksum is the additive mod-256 checksum shared by both frame
// formats. Byte arithmetic wraps naturally.
func sumChecksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}
