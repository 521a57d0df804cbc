package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOXKB_DATA_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7433", cfg.Server.Listen)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXKB_DATA_DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  listen: "0.0.0.0:9000"
worker:
  poll_interval: 500ms
  max_retries: 7
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 7, cfg.Worker.MaxRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched values keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Worker.StaleAfter)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXKB_DATA_DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \"0.0.0.0:9000\"\n"), 0o644))

	t.Setenv("VOXKB_LISTEN", "127.0.0.1:9001")
	t.Setenv("VOXKB_STALE_AFTER", "90s")
	t.Setenv("VOXKB_MAX_RETRIES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.Server.Listen)
	assert.Equal(t, 90*time.Second, cfg.Worker.StaleAfter)
	assert.Equal(t, 1, cfg.Worker.MaxRetries)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXKB_DATA_DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  poll_interval: -5s\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VOXKB_DATA_DIR", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7433", cfg.Server.Listen)
}
