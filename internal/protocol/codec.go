package protocol

import "fmt"

// Version selects a frame format strategy. Control boxes speak exactly one
// format; the version is part of the device configuration and fixed for
// the lifetime of a session.
type Version int

const (
	// VersionAA55 is the current 8-byte command format with AA 55 magic.
	VersionAA55 Version = iota
	// VersionLegacy is the older 0x76 header format.
	VersionLegacy
)

// String returns a human-readable name for the version
func (v Version) String() string {
	switch v {
	case VersionAA55:
		return "aa55"
	case VersionLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion converts a configuration string into a Version.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "", "aa55":
		return VersionAA55, nil
	case "legacy":
		return VersionLegacy, nil
	default:
		return 0, fmt.Errorf("unknown protocol version %q (want aa55 or legacy)", s)
	}
}

// LevelSource reports the most recent power level successfully written to
// the device. Decoders consult it to correct frames where the firmware
// reports the default level instead of echoing the last write. Implementations
// must be safe for concurrent use.
type LevelSource interface {
	// LastCommandedLevel returns the remembered level and whether one has
	// been recorded yet.
	LastCommandedLevel() (level byte, ok bool)
}

// Codec encodes commands and decodes inbound frames for one protocol
// version. Implementations hold no mutable state and are safe for
// concurrent use.
type Codec interface {
	// EncodeCommand builds an outbound frame for the command. Fails when
	// the version has no wire encoding for id.
	EncodeCommand(auth AuthState, id CommandID, dataLo, dataHi byte) ([]byte, error)
	// Decode classifies and decodes an inbound frame. Failures are
	// reported as *FrameError.
	Decode(raw []byte) (Message, error)
	// Supports reports whether the version has a wire encoding for id.
	Supports(id CommandID) bool
	// Version identifies the strategy.
	Version() Version
}

// Option configures a codec.
type Option func(*codecOptions)

type codecOptions struct {
	levels LevelSource
}

// WithLevelMemory installs a source for the last commanded level, enabling
// the level correction heuristic on decode. Without it decoded levels are
// taken from the wire as-is.
func WithLevelMemory(src LevelSource) Option {
	return func(o *codecOptions) {
		o.levels = src
	}
}

// NewCodec returns the codec strategy for the given protocol version.
func NewCodec(v Version, opts ...Option) (Codec, error) {
	var o codecOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch v {
	case VersionAA55:
		return &aa55Codec{levels: o.levels}, nil
	case VersionLegacy:
		// The legacy format has no level register, so the level memory
		// option has nothing to correct.
		return &legacyCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown protocol version: %d", v)
	}
}
