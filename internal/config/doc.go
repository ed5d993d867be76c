// Package config provides user configuration management for cabinheat.
//
// This package manages a YAML-based configuration file that stores known
// heater control boxes (address, PIN, protocol variant) and application
// preferences. The configuration follows OS-specific conventions for
// storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/cabinheat/config.yaml or $HOME/.config/cabinheat/config.yaml
//   - macOS: $HOME/.config/cabinheat/config.yaml
//   - Windows: %LOCALAPPDATA%\cabinheat\config.yaml
//
// Setting CABINHEAT_CONFIG overrides the path entirely.
//
// # Usage Example
//
//	// Load the global registry
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Add or update a heater
//	h := registry.EnsureHeater("AA:BB:CC:DD:EE:FF")
//	h.Nickname = "Boat Cabin"
//	h.Password = 4321
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across
// goroutines. File operations are protected by a mutex to ensure atomic
// writes.
package config
