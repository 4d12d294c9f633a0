package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds the portal endpoints the client talks to.
type ServerConfig struct {
	// BaseURL is the root URL of the portal REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// SocketURL is the websocket endpoint for push signals.
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`
}

// SessionConfig holds the identity the client syncs notifications for.
type SessionConfig struct {
	// Role is one of "admin", "faculty", "student".
	Role string `mapstructure:"role" yaml:"role"`

	// Identity is the email for faculty/student roles; empty for admin.
	Identity string `mapstructure:"identity" yaml:"identity"`
}

// SyncConfig tunes the notification sync core.
type SyncConfig struct {
	// StalenessSec is how long a fetched snapshot stays fresh enough to
	// serve repeat reads without a round trip.
	StalenessSec int `mapstructure:"staleness_sec" yaml:"staleness_sec"`

	// CoalesceMs is the window within which a burst of push signals
	// collapses into a single refetch.
	CoalesceMs int `mapstructure:"coalesce_ms" yaml:"coalesce_ms"`

	// ReconnectAttempts bounds websocket reconnection retries.
	ReconnectAttempts int `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
}

// DisplayConfig holds UI preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// Scope returns the sync scope configured for this session.
func (c *AppConfig) Scope() Scope {
	return Scope{Role: Role(c.Session.Role), Identity: c.Session.Identity}
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/portal-notify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "portal-notify", "config.yaml")
}

// DefaultStatePath returns the default path for the local state database.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "state.db")
	}
	return filepath.Join(home, ".local", "share", "portal-notify", "state.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Sync: SyncConfig{
			StalenessSec:      300,
			CoalesceMs:        300,
			ReconnectAttempts: 10,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("sync.staleness_sec", 300)
	v.SetDefault("sync.coalesce_ms", 300)
	v.SetDefault("sync.reconnect_attempts", 10)
	v.SetDefault("display.theme", "default")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("session", cfg.Session)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
