// Package container provides dependency injection and lifecycle management
// for the requisition approval service.
package container

import (
	"fmt"
	"time"
)

// Config is everything the container needs to start.
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Approval ApprovalConfig
	Server   ServerConfig
	Worker   WorkerConfig

	// MetricsEnabled mounts /metrics and records decision metrics
	MetricsEnabled bool
}

// DatabaseConfig holds SQLite settings. BusyTimeout is the driver-level wait
// on a locked file; BusyRetries is how often a whole transaction is re-run
// after the wait still ends in SQLITE_BUSY.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
	BusyRetries     int
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	TokenTTL  time.Duration
}

// ApprovalConfig holds approval policy settings.
type ApprovalConfig struct {
	MasterBypassConsensus bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	StatusPollInterval time.Duration
	StatusQueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/requisitions.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			BusyRetries:     3,
		},
		Auth: AuthConfig{
			Issuer:   "procure-approval",
			Audience: "procure-approval",
			TokenTTL: 8 * time.Hour,
		},
		Approval: ApprovalConfig{
			MasterBypassConsensus: true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			StatusPollInterval: 30 * time.Second,
			StatusQueryTimeout: 5 * time.Second,
		},
		MetricsEnabled: true,
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.BusyRetries < 0 {
		return fmt.Errorf("database.busy_retries must not be negative")
	}
	if c.Worker.StatusPollInterval <= 0 {
		return fmt.Errorf("worker.status_poll_interval must be positive")
	}
	return nil
}
