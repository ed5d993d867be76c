package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "cabinheat"
	configFile = "config.yaml"

	// EnvConfigPath overrides the config file location when set. Useful
	// for tests and for running several bridges against different
	// heaters on one host.
	EnvConfigPath = "CABINHEAT_CONFIG"
)

var (
	// Global registry instance (loaded lazily)
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// Mutex for thread-safe file operations
	fileMutex sync.Mutex
)

// GetConfigDir returns the OS-appropriate configuration directory for the
// application:
//   - Linux: $XDG_CONFIG_HOME/cabinheat or $HOME/.config/cabinheat
//   - macOS: $HOME/.config/cabinheat (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\cabinheat
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file, honoring
// the CABINHEAT_CONFIG override.
func GetConfigPath() (string, error) {
	if override := os.Getenv(EnvConfigPath); override != "" {
		return override, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// ensureConfigDir ensures the directory holding the config file exists.
func ensureConfigDir(configPath string) error {
	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// LoadRegistry loads the configuration registry from disk.
// If the file doesn't exist, returns a new default registry.
// Thread-safe - multiple calls will return the same instance.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		globalRegistry, globalRegistryErr = loadRegistryFromDisk()
	})
	return globalRegistry, globalRegistryErr
}

// loadRegistryFromDisk performs the actual file loading.
func loadRegistryFromDisk() (*Registry, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return loadRegistryFromFile(configPath)
}

func loadRegistryFromFile(configPath string) (*Registry, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config doesn't exist - return new default registry
		return NewRegistry(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if registry.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", registry.Version)
	}

	// Ensure maps are initialized
	if registry.Heaters == nil {
		registry.Heaters = make(map[string]*Heater)
	}
	if registry.Preferences == nil {
		registry.Preferences = &Preferences{
			ScanTimeout: 10,
			Listen:      "127.0.0.1:8537",
		}
	}

	return &registry, nil
}

// Save saves the registry to disk.
// Performs an atomic write to prevent corruption on crash.
func (r *Registry) Save() error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.saveTo(configPath)
}

func (r *Registry) saveTo(configPath string) error {
	if err := ensureConfigDir(configPath); err != nil {
		return err
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header comment
	header := []byte(`# Cabinheat Configuration File
# This file stores known heater control boxes and application preferences.
#
# The password field holds the device PIN (factory default 1234). Anyone
# within BLE range who knows the PIN can control the heater, so treat a
# changed PIN like any other secret.
#
# Location: ` + configPath + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	// Atomic rename (this is atomic on all platforms)
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// ReloadRegistry reloads the registry from disk, discarding any in-memory changes.
// This is useful for reading changes made by another process.
func ReloadRegistry() (*Registry, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	// Reset the global registry
	globalRegistryOnce = sync.Once{}
	return LoadRegistry()
}
