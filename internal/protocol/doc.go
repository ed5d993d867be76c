// Package protocol implements the cabin heater binary frame protocol.
//
// This package handles construction and decoding of the binary frames used
// by BLE-controlled diesel cabin heaters. Two incompatible frame formats
// exist in the field; each is implemented as a separate codec strategy
// selected by protocol version, never mixed in one decoder.
//
// # AA55 Format (current hardware)
//
// Commands are fixed 8-byte frames:
//   - Byte 0-1: Magic bytes 0xAA 0x55
//   - Byte 2:   Password high (PIN / 100, decimal split)
//   - Byte 3:   Password low (PIN % 100)
//   - Byte 4:   Command id (1=get status, 2=set mode, 3=power, 4=set value)
//   - Byte 5-6: Data low, data high
//   - Byte 7:   Checksum, sum of bytes 2-6 mod 256
//
// Status notifications come back in the same framing at three lengths:
// 8 bytes (an echo of a command frame), 13 bytes (short status with a
// trailing checksum), and 17 or more bytes (long status; 34-byte frames
// from newer firmware carry an extra fine-grained temperature field).
//
// Some control boxes obfuscate notifications: a leading 0xDA byte marks a
// frame whose remaining bytes are XORed with a fixed 8-byte repeating key.
// The codec strips the marker and unmasks before the magic check.
//
// # Legacy Format (pre-AA55 control boxes)
//
// Older hardware uses a 9-byte frame with a 0x76 header:
//   - Byte 0:   Header 0x76
//   - Byte 1:   Command type (0x16 power, 0x17 status, 0x18 temp, 0x19 fan)
//   - Byte 2:   Data length (always 1)
//   - Byte 3:   Data byte
//   - Byte 4-7: Zero padding
//   - Byte 8:   Checksum, sum of bytes 0-7 mod 256
//
// There is no password field and no level register in this format.
//
// # Usage Example - Encoding
//
//	codec, err := protocol.NewCodec(protocol.VersionAA55)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	auth := protocol.AuthState{Password: 1234}
//	frame, err := codec.EncodeCommand(auth, protocol.CmdPower, 1, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// frame = [0xAA 0x55 0x0C 0x22 0x03 0x01 0x00 0x32]
//
// # Usage Example - Decoding
//
//	msg, err := codec.Decode(notification)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	switch m := msg.(type) {
//	case *protocol.Status:
//	    fmt.Printf("heater: %s\n", m)
//	case *protocol.CommandEcho:
//	    fmt.Printf("echo of command %s\n", m.CommandID)
//	}
//
// # Error Handling
//
// Decode failures are reported as *FrameError with a kind (BadMagic,
// BadChecksum, TooShort) callers can branch on. A BadChecksum on a short
// status frame is routine on noisy links and safe to retry past.
//
// # Level Correction
//
// Some firmware reports the default power level instead of echoing the
// last level written to it. The WithLevelMemory option injects a source
// for the last commanded level; when a decoded frame reports level 1 but
// the source remembers a different value, the decoder prefers the memory.
// This is an empirically derived workaround, kept behind an option so it
// can be disabled per device.
//
// # Thread Safety
//
// Codecs hold no mutable state and are safe for concurrent use. The
// optional LevelSource must be safe for concurrent reads if the codec is
// shared across goroutines.
package protocol
