// Package discovery provides BLE scanning for heater control boxes.
//
// Control boxes advertise under inconsistent names and a handful of
// service UUIDs, so discovery matches both: the known frame service
// UUIDs from the gatt package and the vendor name fragments observed in
// the field ("air", "heater", "parking" and variations).
//
// # Discovery Process
//
//  1. Enables the BLE adapter (once per scanner)
//  2. Starts a scan and collects advertisements until the timeout
//  3. Deduplicates results by address, latest advertisement winning
//  4. Returns all devices in range; LikelyHeater filters the candidates
//
// # Usage Example
//
//	// Discover devices with 10-second timeout
//	devices, err := discovery.ScanForDevices(ctx, 10*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, device := range devices {
//	    if device.LikelyHeater() {
//	        fmt.Println("Found:", device)
//	    }
//	}
//
// Find locates one specific address and returns its scan result for a
// subsequent connect; the transport uses it to bound peer discovery.
//
// # Thread Safety
//
// A Scanner owns one adapter scan at a time; run concurrent scans on
// separate scanners only if the platform BLE stack allows it (most do
// not).
package discovery
