package protocol

import (
	"errors"
	"fmt"
)

// FrameErrorKind categorizes why an inbound frame was rejected.
type FrameErrorKind int

const (
	// BadMagic indicates the frame does not start with the magic bytes of
	// its protocol version (after unmasking, for obfuscated frames).
	BadMagic FrameErrorKind = iota
	// BadChecksum indicates a checksum mismatch on a checksummed status
	// frame. Routine on noisy links; callers may retry past it.
	BadChecksum
	// TooShort indicates the frame is shorter than any known layout, or
	// falls between the recognized status frame lengths.
	TooShort
)

// String returns a human-readable name for the error kind
func (k FrameErrorKind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case BadChecksum:
		return "bad checksum"
	case TooShort:
		return "frame too short"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError describes an inbound frame that could not be decoded.
type FrameError struct {
	Kind   FrameErrorKind
	Length int    // length of the offending frame as received
	Detail string // extra context for logs, may be empty
}

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid frame (%d bytes): %s: %s", e.Length, e.Kind, e.Detail)
	}
	return fmt.Sprintf("invalid frame (%d bytes): %s", e.Length, e.Kind)
}

// IsBadMagic checks if an error is a frame error caused by wrong magic bytes
func IsBadMagic(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind == BadMagic
}

// IsBadChecksum checks if an error is a frame error caused by a checksum
// mismatch
func IsBadChecksum(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind == BadChecksum
}

// IsFrameError checks if an error is any frame decode error
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}
