// Package sqlite provides the SQLite storage adapter
package sqlite

import (
	"concierge-automation/internal/common/errors"
)

// Config holds SQLite connection settings
type Config struct {
	Path string
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.ConfigError("sqlite path is required")
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

func (c *Config) GetConnectionString() string {
	return c.Path + "?_journal_mode=WAL&_busy_timeout=5000"
}
