package container

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/application/dispatcher"
	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/application/service"
	"github.com/garyjia/procure-approval/internal/application/subscriber"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/infrastructure/export"
	"github.com/garyjia/procure-approval/internal/infrastructure/identity"
	"github.com/garyjia/procure-approval/internal/infrastructure/metrics"
	"github.com/garyjia/procure-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procure-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/procure-approval/internal/infrastructure/worker"
	"github.com/garyjia/procure-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// MetricsBundle holds the registry and the collectors registered on it.
type MetricsBundle struct {
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Handler  http.Handler
}

// ProvideDatabase opens the database and brings its schema up to date.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := db.Migrate(ctx, database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger, sqlite.WithBusyRetry(cfg.BusyRetries, 25*time.Millisecond)),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requisition: repository.NewRequisitionRepository(sqlDB, logger),
	}, nil
}

// ProvideIdentity creates the bearer token resolver.
func ProvideIdentity(cfg *AuthConfig) (*identity.JWTResolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return identity.NewJWTResolver(cfg.JWTSecret, cfg.Issuer, cfg.Audience), nil
}

// ProvideMetrics creates a dedicated registry with runtime collectors and the
// workflow metrics. Returns nil when metrics are disabled.
func ProvideMetrics(enabled bool) *MetricsBundle {
	if !enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsBundle{
		Registry: reg,
		Metrics:  metrics.New(reg),
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
}

// ProvideDispatcher creates the event dispatcher and registers subscribers.
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	keyValueLogger := &zapLoggerAdapter{logger: logger}
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(keyValueLogger))

	regs := []subscriber.Registration{
		{EventType: dispatcher.AllEvents, Name: "audit_log", Handler: subscriber.NewAuditLog(keyValueLogger).Handle},
	}
	if m != nil {
		regs = append(regs, subscriber.Registration{EventType: dispatcher.AllEvents, Name: "metrics", Handler: m.HandleEvent})
	}
	subscriber.Register(d, regs...)

	return d, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Publisher port.EventPublisher
	Approval  *ApprovalConfig
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Approval == nil {
		return nil, fmt.Errorf("approval config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	exporter := export.NewXLSXExporter(deps.Logger)

	coordinator := approval.NewCoordinator(
		approval.WithMasterConsensusBypass(deps.Approval.MasterBypassConsensus),
	)

	var opts []service.DecisionOption
	if deps.Metrics != nil {
		opts = append(opts, service.WithDecisionObserver(deps.Metrics))
	}

	return &ServiceBundle{
		Requisition: service.NewRequisitionService(
			deps.Repos.Requisition,
			deps.TxManager,
			deps.Publisher,
			exporter,
			serviceLogger,
		),
		Decision: service.NewDecisionService(
			deps.Repos.Requisition,
			deps.TxManager,
			deps.Publisher,
			coordinator,
			serviceLogger,
			opts...,
		),
		Exporter: exporter,
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	Metrics   *metrics.Metrics
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns a *worker.Manager with all workers added but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(deps.Logger)

	// Without metrics there is nobody to report counts to
	if deps.Metrics != nil {
		manager.Add(worker.NewStatusWorker(
			worker.StatusWorkerConfig{
				PollInterval: deps.WorkerCfg.StatusPollInterval,
				QueryTimeout: deps.WorkerCfg.StatusQueryTimeout,
			},
			deps.Repos.Requisition,
			deps.Metrics,
			deps.Logger,
		))
	}

	return manager, nil
}
