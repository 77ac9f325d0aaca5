package database

import (
	"fmt"
	"time"
)

// Config holds the SQLite connection settings.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns settings tuned for a single-process deployment with
// concurrent readers and the single-writer queue.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./classhub.db",
		MaxConnections:  10,
		ConnMaxLifetime: 30 * time.Second,
		ConnMaxIdleTime: 10 * time.Second,
	}
}

// Validate checks the configuration before any connection is opened.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.ConnMaxLifetime <= 0 {
		return fmt.Errorf("connection max lifetime must be positive")
	}
	if c.ConnMaxIdleTime <= 0 {
		return fmt.Errorf("connection max idle time must be positive")
	}
	return nil
}

// DSN returns the sqlite connection string with the WAL and busy-timeout
// options the write queue depends on.
func (c *Config) DSN() string {
	return c.DatabasePath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}
