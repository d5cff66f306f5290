package config

import (
	"errors"
	"fmt"

	"shepherd/internal/query"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLocking(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.RecordsDir == "" {
		return errors.New("paths.records_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	for _, v := range []struct {
		name  string
		value int
	}{
		{"scheduler.full_check_interval", s.FullCheckInterval},
		{"scheduler.hook_interval", s.HookInterval},
		{"scheduler.status_interval", s.StatusInterval},
		{"scheduler.metrics_interval", s.MetricsInterval},
		{"scheduler.error_retry_interval", s.ErrorRetryInterval},
		{"scheduler.max_runners", s.MaxRunners},
		{"scheduler.zombie_timeout", s.ZombieTimeout},
	} {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive", v.name)
		}
	}
	if _, err := query.Compile(s.QueryFilter); err != nil {
		return fmt.Errorf("scheduler.query_filter: %w", err)
	}
	return nil
}

func (c *Config) validateLocking() error {
	if c.Locking.TimeoutSeconds <= 0 {
		return errors.New("locking.timeout must be positive")
	}
	if c.Locking.RetryDelayMS <= 0 {
		return errors.New("locking.retry_delay_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
