// Package config implements TOML configuration loading, validation,
// and environment overrides for lawdesk. Resolution order is
// defaults, then config file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML
// file.
type Config struct {
	OwnerID string `toml:"owner_id"`
	DataDir string `toml:"data_dir"`

	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// RemoteConfig points at the authoritative backend.
type RemoteConfig struct {
	Endpoint   string `toml:"endpoint"`
	ServiceKey string `toml:"service_key"`
	Bucket     string `toml:"bucket"`
}

// SyncConfig controls the trigger policy timing.
type SyncConfig struct {
	AutoSync            bool `toml:"auto_sync"`
	DebounceSeconds     int  `toml:"debounce_seconds"`     // mutation quiescence before auto-sync
	RealtimeDebounceMS  int  `toml:"realtime_debounce_ms"` // quiescence before a realtime-triggered refresh
	ReconnectSettleMS   int  `toml:"reconnect_settle_ms"`  // settle delay after regaining connectivity
	SaveDebounceMS      int  `toml:"save_debounce_ms"`     // local-store write coalescing window
	ConnectivitySeconds int  `toml:"connectivity_seconds"` // reachability probe interval
	DailyExport         bool `toml:"daily_export"`
}

// LoggingConfig controls log level and the rotating daemon log file.
type LoggingConfig struct {
	Level      string `toml:"level"` // debug, info, warn, error
	File       string `toml:"file"`  // empty logs to stderr only
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Default returns the built-in defaults, applied before the config
// file and environment are consulted.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			AutoSync:            true,
			DebounceSeconds:     4,
			RealtimeDebounceMS:  1200,
			ReconnectSettleMS:   2000,
			SaveDebounceMS:      1500,
			ConnectivitySeconds: 30,
			DailyExport:         true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Remote: RemoteConfig{
			Bucket: "documents",
		},
	}
}

// Validate checks the resolved configuration for operability. A
// missing endpoint or key is not fatal here: the sync service runs
// offline-only against the local cache and reports unconfigured when
// a sync is attempted.
func (c *Config) Validate() error {
	if c.OwnerID == "" {
		return errors.New("config: owner_id is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.Sync.DebounceSeconds < 1 {
		return fmt.Errorf("config: debounce_seconds must be >= 1, got %d", c.Sync.DebounceSeconds)
	}
	if c.Sync.RealtimeDebounceMS < 100 {
		return fmt.Errorf("config: realtime_debounce_ms must be >= 100, got %d", c.Sync.RealtimeDebounceMS)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}

	return nil
}

// RemoteConfigured reports whether the backend endpoint and key are
// both present.
func (c *Config) RemoteConfigured() bool {
	return c.Remote.Endpoint != "" && c.Remote.ServiceKey != ""
}

// Debounce returns the auto-sync quiescence window as a Duration.
func (c *SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// RealtimeDebounce returns the realtime refresh window as a Duration.
func (c *SyncConfig) RealtimeDebounce() time.Duration {
	return time.Duration(c.RealtimeDebounceMS) * time.Millisecond
}

// ReconnectSettle returns the post-reconnect settle delay.
func (c *SyncConfig) ReconnectSettle() time.Duration {
	return time.Duration(c.ReconnectSettleMS) * time.Millisecond
}

// SaveDebounce returns the local-store write coalescing window.
func (c *SyncConfig) SaveDebounce() time.Duration {
	return time.Duration(c.SaveDebounceMS) * time.Millisecond
}

// ConnectivityInterval returns the reachability probe interval.
func (c *SyncConfig) ConnectivityInterval() time.Duration {
	return time.Duration(c.ConnectivitySeconds) * time.Second
}
