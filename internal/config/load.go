package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Environment variable names. Environment wins over the config file,
// so containerized deployments can inject the secret without writing
// it to disk.
const (
	EnvEndpoint   = "LAWDESK_ENDPOINT"
	EnvServiceKey = "LAWDESK_SERVICE_KEY"
	EnvBucket     = "LAWDESK_BUCKET"
	EnvOwnerID    = "LAWDESK_OWNER_ID"
	EnvDataDir    = "LAWDESK_DATA_DIR"
)

// DefaultPath returns the default config file location,
// $XDG_CONFIG_HOME/lawdesk/config.toml or ~/.config/lawdesk/config.toml.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolving home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, "lawdesk", "config.toml"), nil
}

// DefaultDataDir returns the default data directory,
// $XDG_DATA_HOME/lawdesk or ~/.local/share/lawdesk.
func DefaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolving home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(base, "lawdesk"), nil
}

// Load resolves the effective configuration: defaults, then the TOML
// file at path (a missing file is not an error), then environment
// overrides, then validation. An empty path uses DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	meta, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No config file: defaults plus environment may still be a
		// complete configuration.
	case err != nil:
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	default:
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
		}
	}

	applyEnv(cfg)

	if cfg.DataDir == "" {
		if cfg.DataDir, err = DefaultDataDir(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Remote.Endpoint = v
	}
	if v := os.Getenv(EnvServiceKey); v != "" {
		cfg.Remote.ServiceKey = v
	}
	if v := os.Getenv(EnvBucket); v != "" {
		cfg.Remote.Bucket = v
	}
	if v := os.Getenv(EnvOwnerID); v != "" {
		cfg.OwnerID = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
}
