package protocol

import "fmt"

// obfuscationKey is the fixed 8-byte repeating XOR key applied by some
// control boxes to notification frames marked with a leading 0xDA byte.
// Recovered from captures against 2023-revision hardware; every observed
// box uses the same key.
var obfuscationKey = [8]byte{0x6b, 0xd0, 0x92, 0x3f, 0xa1, 0x5c, 0xe8, 0x17}

// aa55Codec implements the current 8-byte command format.
type aa55Codec struct {
	levels LevelSource
}

func (c *aa55Codec) Version() Version { return VersionAA55 }

func (c *aa55Codec) Supports(id CommandID) bool {
	switch id {
	case CmdGetStatus, CmdSetMode, CmdPower, CmdSetValue:
		return true
	}
	return false
}

// EncodeCommand builds an 8-byte command frame:
//
//	byte 0: 0xAA
//	byte 1: 0x55
//	byte 2: password / 100
//	byte 3: password % 100
//	byte 4: command id
//	byte 5: data low byte
//	byte 6: data high byte
//	byte 7: checksum = sum(bytes 2-6) mod 256
//
// The password split is decimal, not binary: PIN 1234 encodes as 12, 34.
// The firmware reads the two bytes back as printed digits, so this is the
// device's own convention, odd as it looks.
func (c *aa55Codec) EncodeCommand(auth AuthState, id CommandID, dataLo, dataHi byte) ([]byte, error) {
	if !c.Supports(id) {
		return nil, fmt.Errorf("command %s has no encoding in the AA55 format", id)
	}

	frame := make([]byte, CommandFrameSize)
	frame[0] = FrameMagic1
	frame[1] = FrameMagic2
	frame[2] = byte(auth.Password / 100)
	frame[3] = byte(auth.Password % 100)
	frame[4] = byte(id)
	frame[5] = dataLo
	frame[6] = dataHi
	frame[7] = sumChecksum(frame[2:7])
	return frame, nil
}

// Decode classifies and decodes an inbound frame. A leading 0xDA byte is
// stripped and the remainder unmasked before the magic check. Frames are
// then classified by length: 8 bytes is a command echo, 13 a short status
// frame, 17 or more a long status frame.
func (c *aa55Codec) Decode(raw []byte) (Message, error) {
	buf := raw
	if len(buf) > 0 && buf[0] == ObfuscationMarker {
		buf = unmask(buf[1:])
	}

	if len(buf) < 2 {
		return nil, &FrameError{Kind: TooShort, Length: len(raw)}
	}
	if buf[0] != FrameMagic1 || buf[1] != FrameMagic2 {
		return nil, &FrameError{
			Kind:   BadMagic,
			Length: len(raw),
			Detail: fmt.Sprintf("leading bytes 0x%02x 0x%02x", buf[0], buf[1]),
		}
	}

	switch {
	case len(buf) >= LongStatusSize:
		return c.decodeLongStatus(buf), nil
	case len(buf) == ShortStatusSize:
		return c.decodeShortStatus(buf)
	case len(buf) == CommandFrameSize:
		return decodeEcho(buf), nil
	default:
		return nil, &FrameError{
			Kind:   TooShort,
			Length: len(raw),
			Detail: fmt.Sprintf("no status layout at %d bytes", len(buf)),
		}
	}
}

// decodeLongStatus decodes the 17+ byte status frame:
//
//	byte 3:     run state
//	byte 4:     error code
//	byte 8:     run mode (0/1 = level mode, 2 = thermostat)
//	byte 9:     target temperature (thermostat mode)
//	byte 10:    target level register
//	byte 11-12: supply voltage, little-endian, tenths of a volt
//	byte 13-14: chamber temperature, signed little-endian
//	byte 15-16: room temperature, signed little-endian
//	byte 17-18: chamber temperature in tenths (34-byte frames only,
//	            preferred over the coarse field when present)
//
// Bytes 2, 5-7 vary between firmware revisions and have not been mapped.
func (c *aa55Codec) decodeLongStatus(buf []byte) *Status {
	st := &Status{
		RunState:  RunState(buf[3]),
		ErrorCode: buf[4],
		RunMode:   buf[8],
		Raw:       buf,
	}

	// Level and temperature derivation depends on the run mode. Mode 0
	// and mode 2 store the level zero-based; mode 1 stores it one-based.
	switch st.RunMode {
	case 0:
		st.TargetLevel = buf[10] + 1
	case 1:
		st.TargetLevel = buf[10]
	case 2:
		st.TargetTemperature = buf[9]
		st.TargetLevel = buf[10] + 1
	default:
		st.TargetLevel = buf[10]
	}
	st.TargetLevel = c.correctLevel(clampLevel(st.TargetLevel))
	st.TargetTemperature = clampTemperature(st.TargetTemperature)

	st.Voltage = float64(uint16(buf[12])<<8|uint16(buf[11])) / 10.0
	st.ChamberTemperature = float64(int16(uint16(buf[14])<<8|uint16(buf[13])))
	st.RoomTemperature = float64(int16(uint16(buf[16])<<8|uint16(buf[15])))

	if len(buf) >= ExtStatusSize {
		st.ChamberTemperature = float64(int16(uint16(buf[18])<<8|uint16(buf[17]))) / 10.0
	}
	return st
}

// decodeShortStatus decodes the 13-byte status frame:
//
//	byte 3:     run state
//	byte 4:     error code
//	byte 5:     run mode
//	byte 6:     target level
//	byte 7:     target temperature
//	byte 8-9:   supply voltage, little-endian, tenths of a volt
//	byte 10-11: room temperature, signed little-endian
//	byte 12:    checksum = sum(bytes 2-11) mod 256
//
// Unlike the long frame this variant carries a trailing checksum, and it
// is checked: short frames are emitted by boxes on marginal links.
func (c *aa55Codec) decodeShortStatus(buf []byte) (*Status, error) {
	if got, want := buf[12], sumChecksum(buf[2:12]); got != want {
		return nil, &FrameError{
			Kind:   BadChecksum,
			Length: len(buf),
			Detail: fmt.Sprintf("got 0x%02x, want 0x%02x", got, want),
		}
	}

	st := &Status{
		RunState:          RunState(buf[3]),
		ErrorCode:         buf[4],
		RunMode:           buf[5],
		TargetLevel:       c.correctLevel(clampLevel(buf[6])),
		TargetTemperature: clampTemperature(buf[7]),
		Voltage:           float64(uint16(buf[9])<<8|uint16(buf[8])) / 10.0,
		RoomTemperature:   float64(int16(uint16(buf[11])<<8|uint16(buf[10]))),
		Raw:               buf,
	}
	return st, nil
}

// decodeEcho decodes an 8-byte frame as the echo of a command. The box
// reflects writes back on the notification channel; the checksum is not
// validated because some firmware zeroes the password bytes in the echo.
func decodeEcho(buf []byte) *CommandEcho {
	return &CommandEcho{
		CommandID: CommandID(buf[4]),
		DataLo:    buf[5],
		DataHi:    buf[6],
		Raw:       buf,
	}
}

// correctLevel applies the level correction heuristic: firmware that does
// not echo the last written level reports level 1 instead, so when memory
// of a successful level write disagrees with a reported 1, the memory
// wins. Returns the level unchanged when no source is installed.
func (c *aa55Codec) correctLevel(level byte) byte {
	if c.levels == nil || level != MinLevel {
		return level
	}
	if last, ok := c.levels.LastCommandedLevel(); ok && last != level {
		return clampLevel(last)
	}
	return level
}

// unmask reverses the XOR obfuscation on a 0xDA-marked frame body.
func unmask(masked []byte) []byte {
	out := make([]byte, len(masked))
	for i, b := range masked {
		out[i] = b ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}
