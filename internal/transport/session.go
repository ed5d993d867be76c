package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/brodvik/cabinheat/internal/discovery"
	"github.com/brodvik/cabinheat/internal/gatt"
	"github.com/brodvik/cabinheat/internal/logging"
)

// Sentinel errors for transport failures. Callers classify these into
// their own error taxonomy with errors.Is.
var (
	ErrNotConnected   = errors.New("transport: not connected")
	ErrDeviceNotFound = errors.New("transport: device not found")
	ErrNoProfile      = errors.New("transport: no usable GATT profile on device")
)

// Default session timing
const (
	DefaultDiscoveryTimeout  = 10 * time.Second
	DefaultConnectElapsed    = 20 * time.Second
	DefaultDisconnectTimeout = 2 * time.Second

	// connectInitialBackoff paces reconnect attempts against boxes that
	// reject a connect while still tearing down the previous session.
	connectInitialBackoff = 500 * time.Millisecond
	connectMaxBackoff     = 4 * time.Second

	// notificationBuffer bounds the inbound frame channel. Status frames
	// are small and consumed promptly; overflow drops the oldest traffic
	// rather than blocking the BLE stack's callback goroutine.
	notificationBuffer = 16
)

// State is the connection lifecycle state of a session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns one BLE connection to one heater control box. It is the
// only component that opens, writes to, or closes the underlying handle.
// The wireless stack is not re-entrant per connection, so callers must
// serialize Connect/Disconnect/Write externally; the session only
// protects its own state fields.
type Session struct {
	address string

	// DiscoveryTimeout bounds the scan that locates the peer.
	DiscoveryTimeout time.Duration
	// ConnectElapsed bounds the total reconnect-with-backoff budget.
	ConnectElapsed time.Duration
	// DisconnectTimeout bounds the best-effort unsubscribe on teardown.
	DisconnectTimeout time.Duration

	mu         sync.Mutex
	state      State
	adapter    *bluetooth.Adapter
	scanner    *discovery.Scanner
	device     bluetooth.Device
	writeChar  bluetooth.DeviceCharacteristic
	notifyChar bluetooth.DeviceCharacteristic
	notifyCh   chan []byte

	// handlerOnce guards the adapter-global connect handler install.
	handlerOnce sync.Once
}

// NewSession creates a session for the control box at the given address.
// No I/O happens until Connect.
func NewSession(address string) *Session {
	s := &Session{
		address:           address,
		DiscoveryTimeout:  DefaultDiscoveryTimeout,
		ConnectElapsed:    DefaultConnectElapsed,
		DisconnectTimeout: DefaultDisconnectTimeout,
		adapter:           bluetooth.DefaultAdapter,
	}
	s.scanner = discovery.NewScanner()
	return s
}

// Address returns the peer address the session is bound to
func (s *Session) Address() string {
	return s.address
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is usable for writes
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Notifications returns the inbound frame channel of the current
// connection. The channel is closed when the connection drops, so a
// receive that reports a closed channel means the session is gone.
func (s *Session) Notifications() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyCh
}

// Connect locates the peer, establishes a session and subscribes to the
// notification channel. Transient connect failures are retried with
// exponential backoff within the ConnectElapsed budget. Connecting an
// already connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	logging.LogConnection(s.address, "connecting")

	// The connect handler is the disconnect observer: the BLE stack fires
	// it asynchronously, including mid-command, and the session must flip
	// to Disconnected immediately so pending response waits resolve.
	s.handlerOnce.Do(func() {
		s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			if !strings.EqualFold(device.Address.String(), s.address) {
				return
			}
			s.handleDisconnect()
		})
	})

	s.scanner.Timeout = s.DiscoveryTimeout
	result, err := s.scanner.Find(ctx, s.address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, s.address, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = connectInitialBackoff
	bo.MaxInterval = connectMaxBackoff
	bo.MaxElapsedTime = s.ConnectElapsed

	var device bluetooth.Device
	err = backoff.Retry(func() error {
		var attemptErr error
		device, attemptErr = s.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if attemptErr != nil {
			logging.Debug("Connect attempt failed",
				zap.String("address", s.address),
				zap.Error(attemptErr),
			)
		}
		return attemptErr
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.address, err)
	}

	writeChar, notifyChar, profile, err := s.discoverProfile(device)
	if err != nil {
		device.Disconnect()
		return err
	}

	notifyCh := make(chan []byte, notificationBuffer)
	err = notifyChar.EnableNotifications(func(buf []byte) {
		// The stack reuses buf between callbacks; copy before handing off.
		frame := make([]byte, len(buf))
		copy(frame, buf)
		logging.LogRawBytes("notification", frame)
		select {
		case notifyCh <- frame:
		default:
			logging.Warn("Notification buffer full, dropping frame",
				zap.String("address", s.address),
				zap.Int("length", len(frame)),
			)
		}
	})
	if err != nil {
		device.Disconnect()
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	s.mu.Lock()
	s.device = device
	s.writeChar = writeChar
	s.notifyChar = notifyChar
	s.notifyCh = notifyCh
	s.state = StateConnected
	s.mu.Unlock()

	logging.LogConnection(s.address, "connected")
	logging.Debug("GATT profile selected",
		zap.String("address", s.address),
		zap.String("profile", profile),
	)
	return nil
}

// discoverProfile probes the known GATT layouts in order, falling back to
// a characteristic-property sweep for boxes exposing a known
// characteristic under an unknown service.
func (s *Session) discoverProfile(device bluetooth.Device) (writeChar, notifyChar bluetooth.DeviceCharacteristic, name string, err error) {
	for _, profile := range gatt.Profiles() {
		services, err := device.DiscoverServices([]bluetooth.UUID{profile.Service})
		if err != nil || len(services) == 0 {
			continue
		}

		chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{profile.Write, profile.Notify})
		if err != nil {
			continue
		}

		var w, n bluetooth.DeviceCharacteristic
		var haveW, haveN bool
		for _, c := range chars {
			if c.UUID() == profile.Write {
				w, haveW = c, true
			}
			if c.UUID() == profile.Notify {
				n, haveN = c, true
			}
		}
		if haveW && haveN {
			return w, n, profile.Name, nil
		}
	}

	// Fallback: sweep every service for candidate characteristics.
	services, derr := device.DiscoverServices(nil)
	if derr != nil {
		return writeChar, notifyChar, "", fmt.Errorf("service discovery failed: %w", derr)
	}

	var haveW, haveN bool
	for _, service := range services {
		chars, cerr := service.DiscoverCharacteristics(nil)
		if cerr != nil {
			continue
		}
		for _, c := range chars {
			if !haveW && gatt.IsWriteCandidate(c.UUID()) {
				writeChar, haveW = c, true
			}
			if !haveN && gatt.IsNotifyCandidate(c.UUID()) {
				notifyChar, haveN = c, true
			}
		}
	}
	if haveW && haveN {
		return writeChar, notifyChar, "fallback", nil
	}
	return writeChar, notifyChar, "", ErrNoProfile
}

// handleDisconnect reacts to an asynchronous link drop reported by the
// BLE stack. Closing the notification channel resolves any pending
// response wait with a closed-channel receive.
func (s *Session) handleDisconnect() {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	ch := s.notifyCh
	s.notifyCh = nil
	s.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	logging.LogConnection(s.address, "link_lost")
}

// Disconnect tears the session down. Unsubscribing is best-effort under
// a short timeout; failures are logged and tolerated. The handle is
// released and state reset to Disconnected on every exit path.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	device := s.device
	notifyChar := s.notifyChar
	ch := s.notifyCh
	s.notifyCh = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	// Unsubscribe with a bounded wait; a box on a marginal link can hang
	// this call well past its usefulness.
	done := make(chan error, 1)
	go func() {
		done <- notifyChar.EnableNotifications(nil)
	}()
	select {
	case err := <-done:
		if err != nil {
			logging.Warn("Unsubscribe failed", zap.String("address", s.address), zap.Error(err))
		}
	case <-time.After(s.DisconnectTimeout):
		logging.Warn("Unsubscribe timed out", zap.String("address", s.address))
	}

	if err := device.Disconnect(); err != nil {
		logging.Warn("Disconnect failed", zap.String("address", s.address), zap.Error(err))
	}
	if ch != nil {
		close(ch)
	}
	logging.LogConnection(s.address, "disconnected")
}

// Write sends one frame to the control box. Fails with ErrNotConnected
// when the session is not connected.
func (s *Session) Write(frame []byte) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	writeChar := s.writeChar
	s.mu.Unlock()

	logging.LogFrame(s.address, "write", frame)
	if _, err := writeChar.WriteWithoutResponse(frame); err != nil {
		return fmt.Errorf("frame write failed: %w", err)
	}
	return nil
}
