package gatt

import "tinygo.org/x/bluetooth"

// Profile describes one known GATT layout for a heater control box: the
// frame service and the characteristics used for command writes and status
// notifications. On some boxes write and notify share one characteristic.
type Profile struct {
	Name    string
	Service bluetooth.UUID
	Write   bluetooth.UUID
	Notify  bluetooth.UUID
}

// Known layouts, in probe order.
var (
	// profileVendor is the layout from the vendor BLE module datasheet.
	profileVendor = Profile{
		Name:    "vendor",
		Service: bluetooth.New16BitUUID(0xFFF0),
		Write:   bluetooth.New16BitUUID(0xFFF1),
		Notify:  bluetooth.New16BitUUID(0xFFF2),
	}

	// profileShared is the layout most field units expose: a single
	// characteristic doing both writes and notifications.
	profileShared = Profile{
		Name:    "shared",
		Service: bluetooth.New16BitUUID(0xFFE0),
		Write:   bluetooth.New16BitUUID(0xFFE1),
		Notify:  bluetooth.New16BitUUID(0xFFE1),
	}

	// profileSplit appears on boxes with newer BLE modules: same service
	// as profileShared but separate write and notify characteristics.
	profileSplit = Profile{
		Name:    "split",
		Service: bluetooth.New16BitUUID(0xFFE0),
		Write:   bluetooth.New16BitUUID(0xFFE3),
		Notify:  bluetooth.New16BitUUID(0xFFE4),
	}
)

// Profiles returns the known layouts in probe order. The shared layout goes
// first: it covers most units in the field, and probing it first avoids a
// second discovery round on the common path.
func Profiles() []Profile {
	return []Profile{profileShared, profileSplit, profileVendor}
}

// ServiceUUIDs returns the service UUIDs of all known profiles with
// duplicates removed, in probe order, for use as a discovery filter.
func ServiceUUIDs() []bluetooth.UUID {
	var out []bluetooth.UUID
	seen := make(map[bluetooth.UUID]bool)
	for _, p := range Profiles() {
		if !seen[p.Service] {
			seen[p.Service] = true
			out = append(out, p.Service)
		}
	}
	return out
}

// IsWriteCandidate reports whether the characteristic UUID fills the write
// slot of any known profile. Used as a fallback when a box exposes a known
// characteristic under an unknown service.
func IsWriteCandidate(u bluetooth.UUID) bool {
	for _, p := range Profiles() {
		if p.Write == u {
			return true
		}
	}
	return false
}

// IsNotifyCandidate reports whether the characteristic UUID fills the
// notify slot of any known profile.
func IsNotifyCandidate(u bluetooth.UUID) bool {
	for _, p := range Profiles() {
		if p.Notify == u {
			return true
		}
	}
	return false
}
