package config

import (
	"time"

	"github.com/brodvik/cabinheat/internal/protocol"
)

// Registry represents the entire user configuration file.
// It stores known heaters and application preferences.
type Registry struct {
	Version int `yaml:"version"`

	// DefaultHeater names the entry used when no --device flag is given.
	DefaultHeater string `yaml:"default_heater,omitempty"`

	// Heaters is keyed by BLE address (AA:BB:CC:DD:EE:FF).
	Heaters map[string]*Heater `yaml:"heaters,omitempty"`

	Preferences *Preferences `yaml:"preferences,omitempty"`
}

// Heater represents the stored configuration for one control box.
type Heater struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	Password uint16    `yaml:"password,omitempty"`  // Device PIN; 0 means factory default
	Protocol string    `yaml:"protocol,omitempty"`  // "aa55" (default) or "legacy"
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last scan/connection time

	// PollIntervalSeconds overrides the status refresh cadence. 0 keeps
	// the built-in default.
	PollIntervalSeconds int `yaml:"poll_interval_seconds,omitempty"`

	// LevelCorrection toggles the prefer-last-commanded-level decode
	// policy. Unset means enabled.
	LevelCorrection *bool `yaml:"level_correction,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	ScanTimeout int    `yaml:"scan_timeout"`      // BLE scan timeout in seconds
	Listen      string `yaml:"listen,omitempty"`  // Default bridge listen address
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Heaters: make(map[string]*Heater),
		Preferences: &Preferences{
			ScanTimeout: 10,
			Listen:      "127.0.0.1:8537",
		},
	}
}

// GetHeater retrieves heater configuration by address.
// Returns nil if the heater doesn't exist in the registry.
func (r *Registry) GetHeater(address string) *Heater {
	return r.Heaters[address]
}

// EnsureHeater ensures a heater entry exists in the registry, creating a
// default one if needed. The first heater ever added becomes the default.
func (r *Registry) EnsureHeater(address string) *Heater {
	if r.Heaters == nil {
		r.Heaters = make(map[string]*Heater)
	}

	if h, exists := r.Heaters[address]; exists {
		return h
	}

	h := &Heater{}
	r.Heaters[address] = h
	if r.DefaultHeater == "" {
		r.DefaultHeater = address
	}
	return h
}

// UpdateLastSeen stamps the heater's last scan/connection time.
func (r *Registry) UpdateLastSeen(address string) {
	r.EnsureHeater(address).LastSeen = time.Now()
}

// SetNickname sets a user-friendly nickname for a heater.
func (r *Registry) SetNickname(address, nickname string) {
	r.EnsureHeater(address).Nickname = nickname
}

// Default returns the configured default heater's address and entry, or
// ("", nil) when none is configured.
func (r *Registry) Default() (string, *Heater) {
	if r.DefaultHeater == "" {
		return "", nil
	}
	return r.DefaultHeater, r.Heaters[r.DefaultHeater]
}

// PasswordOrDefault returns the stored PIN, or the factory default when
// none is stored. Works on a nil entry.
func (h *Heater) PasswordOrDefault() uint16 {
	if h == nil || h.Password == 0 {
		return protocol.DefaultPassword
	}
	return h.Password
}

// ProtocolVersion parses the stored protocol name. An empty or missing
// entry selects the current AA55 format.
func (h *Heater) ProtocolVersion() (protocol.Version, error) {
	if h == nil {
		return protocol.VersionAA55, nil
	}
	return protocol.ParseVersion(h.Protocol)
}

// PollInterval returns the configured poll cadence, or zero when the
// built-in default should apply. Works on a nil entry.
func (h *Heater) PollInterval() time.Duration {
	if h == nil || h.PollIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(h.PollIntervalSeconds) * time.Second
}

// CorrectionEnabled reports whether level correction should be applied.
// Unset means enabled; only an explicit false disables it.
func (h *Heater) CorrectionEnabled() bool {
	return h == nil || h.LevelCorrection == nil || *h.LevelCorrection
}
