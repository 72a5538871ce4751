// Package postgres provides the PostgreSQL storage adapter, backed by
// pgx through database/sql
package postgres

import (
	"fmt"

	"concierge-automation/internal/common/errors"
)

// Config holds PostgreSQL connection settings
type Config struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.ConfigError("postgres host is required")
	}
	if c.Database == "" {
		return errors.ConfigError("postgres database is required")
	}
	if c.User == "" {
		return errors.ConfigError("postgres user is required")
	}
	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

func (c *Config) GetConnectionString() string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.Host, port, c.Database, c.User, c.Password, sslMode)
}
