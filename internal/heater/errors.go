package heater

import (
	"context"
	"errors"
	"fmt"

	"github.com/brodvik/cabinheat/internal/protocol"
	"github.com/brodvik/cabinheat/internal/transport"
)

// Error types for heater operations

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeDeviceNotFound indicates the peer never appeared during scan
	ErrTypeDeviceNotFound ErrorType = iota
	// ErrTypeConnectionTimeout indicates connecting exceeded its budget
	ErrTypeConnectionTimeout
	// ErrTypeNotConnected indicates an operation on a dead session
	ErrTypeNotConnected
	// ErrTypeInvalidFrame indicates an inbound frame failed to decode
	ErrTypeInvalidFrame
	// ErrTypeResponseTimeout indicates the device never answered a command
	ErrTypeResponseTimeout
	// ErrTypeInvalidArgument indicates a range violation, rejected before any I/O
	ErrTypeInvalidArgument
	// ErrTypeCancelled indicates the operation was abandoned on teardown
	ErrTypeCancelled
	// ErrTypeUnknown indicates an unclassified error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeDeviceNotFound:
		return "Device Not Found"
	case ErrTypeConnectionTimeout:
		return "Connection Timeout"
	case ErrTypeNotConnected:
		return "Not Connected"
	case ErrTypeInvalidFrame:
		return "Invalid Frame"
	case ErrTypeResponseTimeout:
		return "Response Timeout"
	case ErrTypeInvalidArgument:
		return "Invalid Argument"
	case ErrTypeCancelled:
		return "Cancelled"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(et))
	}
}

// DeviceError represents an error that occurred while talking to the
// heater control box
type DeviceError struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable error message
	Address   string    // Device address (for context)
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewDeviceNotFoundError creates an error for a peer missing from scan
func NewDeviceNotFoundError(address string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeDeviceNotFound,
		Message:   fmt.Sprintf("device %s not found", address),
		Address:   address,
		Err:       err,
		Retryable: true,
	}
}

// NewConnectionTimeoutError creates an error for an exhausted connect budget
func NewConnectionTimeoutError(address string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeConnectionTimeout,
		Message:   "connection attempt timed out",
		Address:   address,
		Err:       err,
		Retryable: true,
	}
}

// NewNotConnectedError creates an error for an operation on a dead session
func NewNotConnectedError(err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeNotConnected,
		Message:   "not connected to device",
		Err:       err,
		Retryable: true,
	}
}

// NewInvalidFrameError creates an error for an undecodable inbound frame
func NewInvalidFrameError(err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeInvalidFrame,
		Message:   "device sent an invalid frame",
		Err:       err,
		Retryable: true,
	}
}

// NewResponseTimeoutError creates an error for a command the device
// never answered
func NewResponseTimeoutError() *DeviceError {
	return &DeviceError{
		Type:      ErrTypeResponseTimeout,
		Message:   "device did not respond",
		Retryable: true,
	}
}

// NewInvalidArgumentError creates a local validation error. These are
// raised before any I/O and are never retryable.
func NewInvalidArgumentError(message string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeInvalidArgument,
		Message: message,
	}
}

// NewCancelledError creates an error for an operation abandoned on teardown
func NewCancelledError() *DeviceError {
	return &DeviceError{
		Type:    ErrTypeCancelled,
		Message: "operation cancelled",
	}
}

// ClassifyError maps transport and codec failures onto the DeviceError
// taxonomy. Already classified errors pass through unchanged.
func ClassifyError(err error, address string) *DeviceError {
	if err == nil {
		return nil
	}

	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr
	}

	switch {
	case errors.Is(err, transport.ErrNotConnected):
		return NewNotConnectedError(err)
	case errors.Is(err, transport.ErrDeviceNotFound):
		return NewDeviceNotFoundError(address, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewConnectionTimeoutError(address, err)
	case errors.Is(err, context.Canceled):
		return NewCancelledError()
	case protocol.IsFrameError(err):
		return NewInvalidFrameError(err)
	}

	return &DeviceError{
		Type:      ErrTypeUnknown,
		Message:   "device communication failed",
		Address:   address,
		Err:       err,
		Retryable: true,
	}
}

// IsDeviceNotFound checks if an error is a missing-peer error
func IsDeviceNotFound(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeDeviceNotFound
}

// IsNotConnected checks if an error is a dead-session error
func IsNotConnected(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeNotConnected
}

// IsInvalidArgument checks if an error is a local range violation
func IsInvalidArgument(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeInvalidArgument
}

// IsCancelled checks if an error is a teardown cancellation
func IsCancelled(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeCancelled
}

// IsResponseTimeout checks if an error is an unanswered command
func IsResponseTimeout(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeResponseTimeout
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// ShortMessage returns a truncated single-line message for annotating
// snapshots. Full chains go to the log; the snapshot carries just enough
// to show in a status field.
func ShortMessage(err error, max int) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		msg = fmt.Sprintf("%s: %s", devErr.Type, devErr.Message)
	}

	if max > 3 && len(msg) > max {
		msg = msg[:max-3] + "..."
	}
	return msg
}
