package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/brodvik/cabinheat/internal/gatt"
	"github.com/brodvik/cabinheat/internal/logging"
)

const (
	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second
)

// Scanner handles BLE device discovery
type Scanner struct {
	// Adapter is the BLE adapter used for scanning
	Adapter *bluetooth.Adapter

	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	enableOnce sync.Once
	enableErr  error
}

// NewScanner creates a new scanner on the default adapter
func NewScanner() *Scanner {
	return &Scanner{
		Adapter: bluetooth.DefaultAdapter,
		Timeout: DefaultScanTimeout,
	}
}

// enable powers up the adapter. Enabling twice is an error on some
// platforms, so it runs once per scanner.
func (s *Scanner) enable() error {
	s.enableOnce.Do(func() {
		s.enableErr = s.Adapter.Enable()
	})
	if s.enableErr != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", s.enableErr)
	}
	return nil
}

// Scan discovers nearby BLE devices. Every peripheral seen within the
// timeout is returned, deduplicated by address with the latest
// advertisement winning; callers filter with Device.LikelyHeater.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	if err := s.enable(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	// Channel to receive scan results; the callback runs on the BLE
	// stack's goroutine and must not block.
	results := make(chan *Device, 32)
	seen := make(map[string]*Device)
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for device := range results {
			seen[device.Address] = device
		}
	}()

	// StopScan unblocks the Scan call below when the timeout fires.
	go func() {
		<-ctx.Done()
		if err := s.Adapter.StopScan(); err != nil {
			logging.Debug("StopScan failed", zap.Error(err))
		}
	}()

	err := s.Adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		device := parseScanResult(result)
		select {
		case results <- device:
		default:
		}
	})
	close(results)
	<-collectorDone

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("BLE scan failed: %w", err)
	}

	devices := make([]*Device, 0, len(seen))
	for _, device := range seen {
		devices = append(devices, device)
	}

	logging.Debug("Scan complete", zap.Int("devices", len(devices)))
	return devices, nil
}

// Find scans until the device with the given address appears, returning
// its scan result for a subsequent connect. Fails when the device is not
// seen within the timeout.
func (s *Scanner) Find(ctx context.Context, address string) (bluetooth.ScanResult, error) {
	var zero bluetooth.ScanResult
	if err := s.enable(); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)

	go func() {
		<-ctx.Done()
		if err := s.Adapter.StopScan(); err != nil {
			logging.Debug("StopScan failed", zap.Error(err))
		}
	}()

	err := s.Adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !strings.EqualFold(result.Address.String(), address) {
			return
		}
		select {
		case found <- result:
		default:
		}
		cancel()
	})
	if err != nil && ctx.Err() == nil {
		return zero, fmt.Errorf("BLE scan failed: %w", err)
	}

	select {
	case result := <-found:
		logging.LogConnection(address, "discovered")
		return result, nil
	default:
		return zero, fmt.Errorf("device %s not found within %s", address, s.Timeout)
	}
}

// parseScanResult converts a scan callback result to a Device. The
// advertisement payload only answers membership queries, so the known
// heater service UUIDs are probed one by one.
func parseScanResult(result bluetooth.ScanResult) *Device {
	var services []bluetooth.UUID
	for _, svc := range gatt.ServiceUUIDs() {
		if result.AdvertisementPayload.HasServiceUUID(svc) {
			services = append(services, svc)
		}
	}

	return &Device{
		Address:      result.Address.String(),
		Name:         result.LocalName(),
		RSSI:         result.RSSI,
		Services:     services,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.Scan(ctx)
}
