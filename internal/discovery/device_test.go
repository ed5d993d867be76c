package discovery

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

func TestDevice_String(t *testing.T) {
	device := &Device{
		Address: "AA:BB:CC:DD:EE:FF",
		Name:    "Air Heater BLE",
		RSSI:    -62,
	}

	expected := "Air Heater BLE (AA:BB:CC:DD:EE:FF, -62 dBm)"
	if device.String() != expected {
		t.Errorf("Device.String() = %v, want %v", device.String(), expected)
	}
}

func TestDevice_String_NoName(t *testing.T) {
	device := &Device{
		Address: "AA:BB:CC:DD:EE:FF",
		RSSI:    -80,
	}

	expected := "<no name> (AA:BB:CC:DD:EE:FF, -80 dBm)"
	if device.String() != expected {
		t.Errorf("Device.String() = %v, want %v", device.String(), expected)
	}
}

func TestDevice_LikelyHeater(t *testing.T) {
	tests := []struct {
		name   string
		device *Device
		want   bool
	}{
		{
			name:   "known service UUID",
			device: &Device{Services: []bluetooth.UUID{bluetooth.New16BitUUID(0xFFE0)}},
			want:   true,
		},
		{
			name:   "vendor service UUID",
			device: &Device{Services: []bluetooth.UUID{bluetooth.New16BitUUID(0xFFF0)}},
			want:   true,
		},
		{
			name:   "unrelated service UUID",
			device: &Device{Services: []bluetooth.UUID{bluetooth.New16BitUUID(0x180F)}},
			want:   false,
		},
		{
			name:   "name contains heater",
			device: &Device{Name: "Diesel Heater 04"},
			want:   true,
		},
		{
			name:   "name contains air, mixed case",
			device: &Device{Name: "AIR-BLE-3491"},
			want:   true,
		},
		{
			name:   "name contains parking",
			device: &Device{Name: "Parking Warmer"},
			want:   true,
		},
		{
			name:   "unrelated name",
			device: &Device{Name: "JBL Flip 5"},
			want:   false,
		},
		{
			name:   "empty device",
			device: &Device{},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.LikelyHeater(); got != tt.want {
				t.Errorf("LikelyHeater() = %v, want %v", got, tt.want)
			}
		})
	}
}
