package config

import (
	"github.com/garyjia/procure-approval/internal/container"
)

// ToContainerConfig maps the file/env configuration onto the container's.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			BusyRetries:     c.Database.BusyRetries,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
			Audience:  c.Auth.Audience,
			TokenTTL:  c.Auth.TokenTTL,
		},
		Approval: container.ApprovalConfig{
			MasterBypassConsensus: c.Approval.MasterBypassConsensus,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Worker: container.WorkerConfig{
			StatusPollInterval: c.Worker.StatusPollInterval,
			StatusQueryTimeout: c.Worker.StatusQueryTimeout,
		},
		MetricsEnabled: c.Metrics.Enabled,
	}
}
