package config

import "strings"

// normalize expands and cleans path fields and trims free-form strings.
func (c *Config) normalize() error {
	var err error
	if c.Paths.RecordsDir, err = expandPath(c.Paths.RecordsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	c.Scheduler.QueryFilter = strings.TrimSpace(c.Scheduler.QueryFilter)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
