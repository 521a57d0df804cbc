package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides.
const envPrefix = "VOXKB_"

// DataDir returns the on-disk home for the daemon's database and logs,
// honoring VOXKB_DATA_DIR.
func DataDir() (string, error) {
	if dir := os.Getenv(envPrefix + "DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".voxkb"), nil
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	cfg := Default(dataDir)

	if path == "" {
		path = filepath.Join(dataDir, "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays VOXKB_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Listen, "LISTEN")
	setString(&cfg.DB.Path, "DB_PATH")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.File, "LOG_FILE")
	setDuration(&cfg.Worker.PollInterval, "POLL_INTERVAL")
	setDuration(&cfg.Worker.StaleAfter, "STALE_AFTER")
	setDuration(&cfg.Worker.StaleSweepInterval, "STALE_SWEEP_INTERVAL")
	setInt(&cfg.Worker.MaxRetries, "MAX_RETRIES")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Worker.StaleAfter <= 0 {
		return fmt.Errorf("worker.stale_after must be positive")
	}
	if c.Worker.StaleSweepInterval <= 0 {
		return fmt.Errorf("worker.stale_sweep_interval must be positive")
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must not be negative")
	}
	return nil
}
