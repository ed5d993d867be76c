// Package gatt provides centralized constants for the GATT layouts used by
// heater control boxes.
//
// Boxes from different factory runs expose the frame service under different
// UUID triples. All known layouts are defined here so that new hardware
// revisions can be added in a single location.
//
// Usage:
//
//	import "github.com/brodvik/cabinheat/internal/gatt"
//
//	srvs, err := device.DiscoverServices(gatt.ServiceUUIDs())
package gatt
