// Package config handles configuration management for aidesk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the control-plane server configuration.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// StoreConfig describes where the host editor keeps its per-workspace
// chat session files.
type StoreConfig struct {
	// Dir is the root of the editor's chat store. Empty means
	// ~/.aidesk-host/chats (resolved during post-processing).
	Dir string `mapstructure:"dir"`

	// QueryTimeoutMS bounds a single store read so a stalled filesystem
	// cannot starve the scheduler loops.
	QueryTimeoutMS int `mapstructure:"query_timeout_ms"`

	// WatchEnabled turns on the fsnotify accelerator for the fast loop.
	WatchEnabled bool `mapstructure:"watch_enabled"`
}

// RegistryConfig holds registry and persistence configuration.
type RegistryConfig struct {
	// SnapshotPath is the registry snapshot file. Empty means
	// ~/.aidesk/state/registry.json.
	SnapshotPath string `mapstructure:"snapshot_path"`

	// QueryFilePath is the external-facing partial state file written by
	// the recent loop. Empty means ~/.aidesk/state/state.json.
	QueryFilePath string `mapstructure:"query_file_path"`

	// StaleSessionHours is the staleness threshold for cleanup.
	StaleSessionHours int `mapstructure:"stale_session_hours"`

	// StaleWorkspaceDays guards restore against resurrecting abandoned
	// empty workspaces.
	StaleWorkspaceDays int `mapstructure:"stale_workspace_days"`

	// DefaultPersona is assigned to auto-created sessions.
	DefaultPersona string `mapstructure:"default_persona"`
}

// SchedulerConfig holds the tiered scheduler configuration.
type SchedulerConfig struct {
	FastIntervalSecs       int `mapstructure:"fast_interval_secs"`
	RecentIntervalSecs     int `mapstructure:"recent_interval_secs"`
	BackgroundIntervalSecs int `mapstructure:"background_interval_secs"`

	// RecentWindow is the number of most-recently-focused sessions the
	// recent loop deep-scans per pass.
	RecentWindow int `mapstructure:"recent_window"`

	// BackgroundBatch is the number of sessions the background loop
	// deep-scans per invocation (rotating offset).
	BackgroundBatch int `mapstructure:"background_batch"`

	// SnapshotIntervalSecs is the period of best-effort snapshot saves.
	SnapshotIntervalSecs int `mapstructure:"snapshot_interval_secs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.aidesk")
		v.AddConfigPath("/etc/aidesk")
	}

	v.SetEnvPrefix("AIDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8790)
	v.SetDefault("server.host", "127.0.0.1")

	// Store defaults
	v.SetDefault("store.dir", "")
	v.SetDefault("store.query_timeout_ms", 5000)
	v.SetDefault("store.watch_enabled", true)

	// Registry defaults
	v.SetDefault("registry.snapshot_path", "")
	v.SetDefault("registry.query_file_path", "")
	v.SetDefault("registry.stale_session_hours", 24)
	v.SetDefault("registry.stale_workspace_days", 7)
	v.SetDefault("registry.default_persona", "general")

	// Scheduler defaults
	v.SetDefault("scheduler.fast_interval_secs", 3)
	v.SetDefault("scheduler.recent_interval_secs", 20)
	v.SetDefault("scheduler.background_interval_secs", 180)
	v.SetDefault("scheduler.recent_window", 10)
	v.SetDefault("scheduler.background_batch", 25)
	v.SetDefault("scheduler.snapshot_interval_secs", 120)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// postProcess resolves empty paths against the user's home directory.
func postProcess(cfg *Config) error {
	stateDir, err := StateDir()
	if err != nil {
		return err
	}

	if cfg.Store.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Store.Dir = filepath.Join(home, ".aidesk-host", "chats")
	}

	if cfg.Registry.SnapshotPath == "" {
		cfg.Registry.SnapshotPath = filepath.Join(stateDir, "registry.json")
	}
	if cfg.Registry.QueryFilePath == "" {
		cfg.Registry.QueryFilePath = filepath.Join(stateDir, "state.json")
	}

	return nil
}

// GetConfigDir returns the user config directory for aidesk.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".aidesk"), nil
}

// StateDir returns the directory for snapshot and query files.
func StateDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// EnsureStateDir ensures the state directory exists.
func EnsureStateDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
