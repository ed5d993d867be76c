package protocol

import "fmt"

// legacyCodec implements the 0x76 header format spoken by pre-AA55 control
// boxes. These boxes have no PIN, no power level register and no frame
// obfuscation; the fan speed register exists only here.
type legacyCodec struct{}

func (c *legacyCodec) Version() Version { return VersionLegacy }

func (c *legacyCodec) Supports(id CommandID) bool {
	switch id {
	case CmdGetStatus, CmdPower, CmdSetTemp, CmdSetFan:
		return true
	}
	return false
}

// EncodeCommand builds a 9-byte legacy frame:
//
//	byte 0:   0x76
//	byte 1:   command type
//	byte 2:   data length (always 1)
//	byte 3:   data byte
//	byte 4-7: zero padding
//	byte 8:   checksum = sum(bytes 0-7) mod 256
//
// The checksum covers the whole preceding frame including the header,
// unlike the AA55 format. There is no password field, so auth is unused,
// and the single data byte means dataHi is ignored.
func (c *legacyCodec) EncodeCommand(auth AuthState, id CommandID, dataLo, dataHi byte) ([]byte, error) {
	var cmdType byte
	switch id {
	case CmdGetStatus:
		cmdType = LegacyCmdStatus
	case CmdPower:
		cmdType = LegacyCmdPower
	case CmdSetTemp:
		cmdType = LegacyCmdTemp
	case CmdSetFan:
		cmdType = LegacyCmdFan
	default:
		return nil, fmt.Errorf("command %s has no encoding in the legacy format", id)
	}

	frame := make([]byte, LegacyFrameSize)
	frame[0] = LegacyHeader
	frame[1] = cmdType
	frame[2] = 0x01
	frame[3] = dataLo
	frame[8] = sumChecksum(frame[:8])
	return frame, nil
}

// Decode decodes a legacy status response:
//
//	byte 0: 0x76
//	byte 3: power flag (0 = off, nonzero = on)
//	byte 4: target temperature
//	byte 5: room temperature
//	byte 6: fan speed
//	byte 7: error code
//
// Legacy boxes only answer status requests, so every valid frame decodes
// as a Status. The format has no echo framing and no checksum on inbound
// frames.
func (c *legacyCodec) Decode(raw []byte) (Message, error) {
	if len(raw) < LegacyStatusMin {
		return nil, &FrameError{Kind: TooShort, Length: len(raw)}
	}
	if raw[0] != LegacyHeader {
		return nil, &FrameError{
			Kind:   BadMagic,
			Length: len(raw),
			Detail: fmt.Sprintf("leading byte 0x%02x", raw[0]),
		}
	}

	st := &Status{
		ErrorCode:         raw[7],
		TargetTemperature: clampTemperature(raw[4]),
		TargetLevel:       MinLevel, // no level register in this format
		FanSpeed:          raw[6],
		RoomTemperature:   float64(raw[5]),
		Raw:               raw,
	}
	if raw[3] != 0 {
		st.RunState = RunStateHeating
	}
	return st, nil
}
