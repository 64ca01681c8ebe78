package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATAPORTAL_URL", "https://api.cloudnet.example/api")
	t.Setenv("STORAGE_SERVICE_URL", "https://storage.cloudnet.example")

	// Empty means unset for these, so the tests are hermetic even when
	// the surrounding environment configures them.
	for _, name := range []string{
		"DATAPORTAL_PUBLIC_URL", "FREEZE_AFTER_DAYS", "FREEZE_MODEL_AFTER_DAYS",
		"WORKER_MAX_TASKS", "STORAGE_CHECKSUM_GRACE", "TOOLBOX_BINARY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.cloudnet.example/api", cfg.DataportalURL)
	assert.Equal(t, 3, cfg.FreezeAfterDays)
	assert.Equal(t, 4, cfg.FreezeModelAfterDays)
	assert.Equal(t, 2*time.Minute, cfg.Tunables.HTTPTimeout)
	assert.Equal(t, 100, cfg.Tunables.MaxTasks)
	assert.Equal(t, ":8090", cfg.Tunables.ListenAddr)
	assert.Equal(t, "cloudnet-toolbox", cfg.Tunables.ToolboxBinary)

	// No explicit public URL: derived from the API base.
	assert.Equal(t, "https://cloudnet.example", cfg.DataportalPublicURL)
}

func TestLoadTrimsTrailingSlashes(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATAPORTAL_URL", "https://api.cloudnet.example/api/")
	t.Setenv("PID_SERVICE_URL", "https://pid.example/")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.cloudnet.example/api", cfg.DataportalURL)
	assert.Equal(t, "https://pid.example", cfg.PIDServiceURL)
}

func TestLoadTunablesFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_MAX_TASKS", "7")

	path := filepath.Join(t.TempDir(), "tunables.yaml")
	data := []byte("poll_interval: 3s\nmax_tasks: 50\nlisten_addr: \":9999\"\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Tunables.PollInterval)
	assert.Equal(t, ":9999", cfg.Tunables.ListenAddr)
	// Environment wins over the file.
	assert.Equal(t, 7, cfg.Tunables.MaxTasks)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 15*time.Minute, cfg.Tunables.ChecksumGrace)
}

func TestLoadMissingTunablesFile(t *testing.T) {
	setRequiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read tunables file")
}

func TestLoadRequiresPortalURL(t *testing.T) {
	t.Setenv("DATAPORTAL_URL", "")
	t.Setenv("STORAGE_SERVICE_URL", "https://storage.cloudnet.example")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATAPORTAL_URL")
}

func TestLoadRejectsBadFreezeDays(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FREEZE_AFTER_DAYS", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FREEZE_AFTER_DAYS")
}

func TestDerivePublicURL(t *testing.T) {
	tests := []struct {
		api  string
		want string
	}{
		{"https://api.cloudnet.example/api", "https://cloudnet.example"},
		{"https://cloudnet.example/api", "https://cloudnet.example"},
		{"https://api.cloudnet.example", "https://cloudnet.example"},
		{"http://localhost:3000", "http://localhost:3000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, derivePublicURL(tt.api), tt.api)
	}
}
