// Package config loads daemon configuration from defaults, an optional
// YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DBConfig configures the SQLite store.
type DBConfig struct {
	Path string `yaml:"path"`
}

// WorkerConfig configures the queue worker.
type WorkerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	StaleSweepInterval time.Duration `yaml:"stale_sweep_interval"`
	MaxRetries         int           `yaml:"max_retries"`
}

// UnmarshalYAML decodes durations from strings like "500ms" or "5m",
// leaving fields absent from the document at their current values.
func (w *WorkerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval       string `yaml:"poll_interval"`
		StaleAfter         string `yaml:"stale_after"`
		StaleSweepInterval string `yaml:"stale_sweep_interval"`
		MaxRetries         *int   `yaml:"max_retries"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parse := func(s string, dst *time.Duration) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*dst = d
		return nil
	}
	if err := parse(raw.PollInterval, &w.PollInterval); err != nil {
		return err
	}
	if err := parse(raw.StaleAfter, &w.StaleAfter); err != nil {
		return err
	}
	if err := parse(raw.StaleSweepInterval, &w.StaleSweepInterval); err != nil {
		return err
	}
	if raw.MaxRetries != nil {
		w.MaxRetries = *raw.MaxRetries
	}
	return nil
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:7433",
		},
		DB: DBConfig{
			Path: filepath.Join(dataDir, "voxkb.db"),
		},
		Worker: WorkerConfig{
			PollInterval:       2 * time.Second,
			StaleAfter:         5 * time.Minute,
			StaleSweepInterval: 1 * time.Minute,
			MaxRetries:         3,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "voxkb.log"),
		},
	}
}
