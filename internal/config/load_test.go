package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
owner_id = "owner1"
data_dir = "/tmp/lawdesk-test"

[remote]
endpoint = "https://api.example.com"
service_key = "secret"

[sync]
debounce_seconds = 10
auto_sync = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "owner1", cfg.OwnerID)
	assert.Equal(t, "https://api.example.com", cfg.Remote.Endpoint)
	assert.True(t, cfg.RemoteConfigured())
	assert.Equal(t, 10, cfg.Sync.DebounceSeconds)
	assert.False(t, cfg.Sync.AutoSync)

	// Untouched sections keep their defaults.
	assert.Equal(t, "documents", cfg.Remote.Bucket)
	assert.Equal(t, 1200, cfg.Sync.RealtimeDebounceMS)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
owner_id = "owner1"
data_dir = "/tmp/x"
debounce = 10
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	path := writeConfig(t, `
owner_id = "from-file"
data_dir = "/tmp/x"

[remote]
endpoint = "https://file.example.com"
`)

	t.Setenv(EnvOwnerID, "from-env")
	t.Setenv(EnvEndpoint, "https://env.example.com")
	t.Setenv(EnvServiceKey, "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OwnerID)
	assert.Equal(t, "https://env.example.com", cfg.Remote.Endpoint)
	assert.Equal(t, "env-secret", cfg.Remote.ServiceKey)
}

func TestLoadMissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv(EnvOwnerID, "owner1")
	t.Setenv(EnvDataDir, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)

	assert.Equal(t, "owner1", cfg.OwnerID)
	assert.False(t, cfg.RemoteConfigured(), "no endpoint configured means offline-only operation")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing owner",
			mutate:  func(c *Config) { c.OwnerID = "" },
			wantErr: "owner_id",
		},
		{
			name:    "missing data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir",
		},
		{
			name:    "debounce too small",
			mutate:  func(c *Config) { c.Sync.DebounceSeconds = 0 },
			wantErr: "debounce_seconds",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			cfg.OwnerID = "owner1"
			cfg.DataDir = "/tmp/x"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
