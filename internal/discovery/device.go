package discovery

import (
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/brodvik/cabinheat/internal/gatt"
)

// Device represents a BLE peripheral seen during a scan
type Device struct {
	// Address is the peripheral address ("AA:BB:CC:DD:EE:FF" on most
	// platforms, a UUID on macOS)
	Address string

	// Name is the advertised local name, may be empty
	Name string

	// RSSI is the signal strength of the last advertisement
	RSSI int16

	// Services are the advertised service UUIDs
	Services []bluetooth.UUID

	// DiscoveredAt is when the device was last seen
	DiscoveredAt time.Time
}

// nameFragments are substrings seen in the advertised names of heater
// control boxes in the field. The vendors never settled on one name.
var nameFragments = []string{"air", "heater", "parking"}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	name := d.Name
	if name == "" {
		name = "<no name>"
	}
	return fmt.Sprintf("%s (%s, %d dBm)", name, d.Address, d.RSSI)
}

// LikelyHeater reports whether the device looks like a heater control box,
// either by advertising one of the known frame service UUIDs or by a name
// matching the known vendor patterns.
func (d *Device) LikelyHeater() bool {
	for _, svc := range d.Services {
		for _, known := range gatt.ServiceUUIDs() {
			if svc == known {
				return true
			}
		}
	}

	name := strings.ToLower(d.Name)
	for _, fragment := range nameFragments {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}
