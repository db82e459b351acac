package worker

import (
	"errors"
	"fmt"
	"time"
)

// Config tunes the notification worker.
type Config struct {
	Concurrency  int           // polling goroutines
	PollInterval time.Duration // idle wait between dequeue attempts
	JobTimeout   time.Duration // per-job context deadline

	// ShutdownTimeout bounds how long Stop waits for in-flight jobs.
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age after which a 'running' row left behind by
	// a crashed process is put back to 'pending' on Start.
	StaleJobThreshold time.Duration
}

// DefaultConfig returns the settings used when WORKER_* variables are unset.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 || c.Concurrency > 100 {
		errs = append(errs, fmt.Errorf("concurrency must be between 1 and 100, got %d", c.Concurrency))
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll interval must be at least 1s, got %v", c.PollInterval))
	}
	if c.JobTimeout < time.Second {
		errs = append(errs, fmt.Errorf("job timeout must be at least 1s, got %v", c.JobTimeout))
	}
	if c.ShutdownTimeout < time.Second {
		errs = append(errs, fmt.Errorf("shutdown timeout must be at least 1s, got %v", c.ShutdownTimeout))
	}
	if c.StaleJobThreshold < time.Minute {
		errs = append(errs, fmt.Errorf("stale job threshold must be at least 1m, got %v", c.StaleJobThreshold))
	}
	return errors.Join(errs...)
}
