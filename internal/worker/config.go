// Package worker drives the ingestion queue: it polls for queued tasks,
// runs them through the pipeline, and recovers tasks orphaned by
// crashes.
package worker

import "time"

// Config defines the worker configuration.
type Config struct {
	// PollInterval is how often the worker checks for queued tasks.
	PollInterval time.Duration `yaml:"poll_interval"`
	// StaleAfter is how long a task may sit in processing before it is
	// considered orphaned and requeued.
	StaleAfter time.Duration `yaml:"stale_after"`
	// StaleSweepInterval is how often the worker scans for orphaned
	// processing tasks.
	StaleSweepInterval time.Duration `yaml:"stale_sweep_interval"`
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       2 * time.Second,
		StaleAfter:         5 * time.Minute,
		StaleSweepInterval: 1 * time.Minute,
	}
}
