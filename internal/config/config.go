// Package config provides configuration management for the motion-control
// service.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/BilGameDev/GyroBird/internal/pipeline"
)

// Config represents the application configuration
type Config struct {
	// Network contains socket and liveness settings
	Network NetworkConfig `json:"network"`

	// Pipeline contains the tilt-to-screen tuning
	Pipeline pipeline.Config `json:"pipeline"`

	// General contains general application settings
	General GeneralConfig `json:"general"`
}

// NetworkConfig contains socket and liveness settings
type NetworkConfig struct {
	// ListenPort is the UDP port the receiver binds for the orientation
	// stream
	ListenPort int `json:"listen_port"`

	// DiscoveryPort is the UDP broadcast port for receiver discovery
	DiscoveryPort int `json:"discovery_port"`

	// DiscoveryEnabled runs the discovery responder alongside the receiver
	DiscoveryEnabled bool `json:"discovery_enabled"`

	// TimeoutSeconds is the silence duration after which the sender is
	// declared disconnected (0 disables timeout detection)
	TimeoutSeconds float64 `json:"timeout_seconds"`

	// PollIntervalMS is how often the liveness tracker is ticked
	PollIntervalMS int `json:"poll_interval_ms"`

	// SendRateHz is the sender-side orientation sampling rate
	SendRateHz int `json:"send_rate_hz"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Role determines if this instance runs as "receiver" or "sender"
	Role string `json:"role"`

	// APIEnabled enables the local HTTP diagnostic server
	APIEnabled bool `json:"api_enabled"`

	// APIPort is the port for the diagnostic server
	APIPort int `json:"api_port"`

	// TrayEnabled shows the system tray status icon
	TrayEnabled bool `json:"tray_enabled"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			ListenPort:       47800,
			DiscoveryPort:    47810,
			DiscoveryEnabled: true,
			TimeoutSeconds:   5.0,
			PollIntervalMS:   500,
			SendRateHz:       200,
		},
		Pipeline: pipeline.DefaultConfig(),
		General: GeneralConfig{
			Role:        "receiver",
			APIEnabled:  true,
			APIPort:     18090,
			TrayEnabled: true,
		},
	}
}

// Validate rejects configurations that cannot run, before any socket opens.
func (c *Config) Validate() error {
	if c.General.Role != "receiver" && c.General.Role != "sender" {
		return fmt.Errorf("config: role must be \"receiver\" or \"sender\", got %q", c.General.Role)
	}
	if c.Network.ListenPort < 1 || c.Network.ListenPort > 65535 {
		return fmt.Errorf("config: listen_port out of range: %d", c.Network.ListenPort)
	}
	if c.Network.DiscoveryPort < 1 || c.Network.DiscoveryPort > 65535 {
		return fmt.Errorf("config: discovery_port out of range: %d", c.Network.DiscoveryPort)
	}
	if c.Network.TimeoutSeconds < 0 {
		return fmt.Errorf("config: timeout_seconds must not be negative: %v", c.Network.TimeoutSeconds)
	}
	if c.Network.PollIntervalMS <= 0 {
		return fmt.Errorf("config: poll_interval_ms must be positive: %d", c.Network.PollIntervalMS)
	}
	if c.Network.SendRateHz <= 0 {
		return fmt.Errorf("config: send_rate_hz must be positive: %d", c.Network.SendRateHz)
	}
	if c.General.APIEnabled && (c.General.APIPort < 1 || c.General.APIPort > 65535) {
		return fmt.Errorf("config: api_port out of range: %d", c.General.APIPort)
	}
	return c.Pipeline.Validate()
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return &Manager{
		configPath: configPath,
		config:     DefaultConfig(),
	}, nil
}

// NewManagerAt creates a manager bound to an explicit config file path.
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "gyrobird")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "gyrobird")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "gyrobird")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return err
	}
	if m.onChanged != nil {
		m.onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set updates the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	if m.onChanged != nil {
		m.onChanged()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
