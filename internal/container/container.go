package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/application/dispatcher"
	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/application/service"
	"github.com/garyjia/procure-approval/internal/infrastructure/identity"
	"github.com/garyjia/procure-approval/internal/infrastructure/metrics"
	"github.com/garyjia/procure-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/procure-approval/internal/infrastructure/worker"
)

// Container owns every long-lived component. Start brings them up stage by
// stage; each stage that acquires a resource pushes a closer, and Close runs
// the closers newest first.
type Container struct {
	config *Config
	logger *zap.Logger

	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	identity *identity.JWTResolver
	metrics  *MetricsBundle

	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	workers    *worker.Manager

	mu      sync.Mutex
	closers []closer
	cancel  context.CancelFunc
	ready   atomic.Bool
	closed  atomic.Bool
}

type closer struct {
	name string
	fn   func() error
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Requisition port.RequisitionRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Requisition service.RequisitionService
	Decision    service.DecisionService
	Exporter    port.ReportExporter
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates the configuration. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start runs the stages in dependency order. If one fails, everything the
// earlier stages acquired is released before the error is returned.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed.Load():
		return fmt.Errorf("container has been closed")
	case c.ready.Load():
		return fmt.Errorf("container already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	stages := []stage{
		{"database", c.startDatabase},
		{"identity", c.startIdentity},
		{"dispatcher", c.startDispatcher},
		{"services", c.startServices},
		{"workers", c.startWorkers},
	}
	for _, st := range stages {
		if err := st.run(runCtx); err != nil {
			cancel()
			if rbErr := c.unwind(); rbErr != nil {
				c.logger.Error("Cleanup after failed start", zap.Error(rbErr))
			}
			return fmt.Errorf("start %s: %w", st.name, err)
		}
		c.logger.Info("Container stage ready", zap.String("stage", st.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started",
		zap.Bool("metrics_enabled", c.metrics != nil),
		zap.Bool("master_bypass_consensus", c.config.Approval.MasterBypassConsensus))
	return nil
}

// Close releases every started component in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.unwind(); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

func (c *Container) onClose(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func (c *Container) unwind() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the database and reports on workers and the dispatcher.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	report := func(name string, h ComponentHealth) {
		status.Components[name] = h
		status.Overall = status.Overall && h.Healthy
	}
	notStarted := ComponentHealth{Message: "not initialized"}

	if c.sqlDB == nil {
		report("database", notStarted)
	} else if err := c.sqlDB.PingContext(ctx); err != nil {
		report("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
	} else {
		report("database", ComponentHealth{Healthy: true})
	}

	if c.workers == nil {
		report("workers", notStarted)
	} else {
		h := ComponentHealth{
			Healthy: c.workers.Running() && len(c.workers.Failed()) == 0,
			Message: fmt.Sprintf("worker count: %d", c.workers.Len()),
		}
		for name, err := range c.workers.Failed() {
			h.Message += fmt.Sprintf("; %s: %v", name, err)
		}
		report("workers", h)
	}

	if c.dispatcher == nil {
		report("dispatcher", notStarted)
	} else {
		report("dispatcher", ComponentHealth{Healthy: true})
	}
	return status
}

func (c *Container) startDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.sqlDB, c.db = bundle.SqlDB, bundle.TransactionMgr
	c.onClose("database", c.sqlDB.Close)

	c.repositories, err = ProvideRepositories(c.sqlDB, c.logger)
	return err
}

func (c *Container) startIdentity(context.Context) error {
	resolver, err := ProvideIdentity(&c.config.Auth)
	if err != nil {
		return err
	}
	c.identity = resolver
	c.metrics = ProvideMetrics(c.config.MetricsEnabled)
	return nil
}

func (c *Container) startDispatcher(context.Context) error {
	d, err := ProvideDispatcher(c.workflowMetrics(), c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = d
	c.onClose("dispatcher", d.Close)
	return nil
}

func (c *Container) startServices(context.Context) error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:     c.repositories,
		TxManager: c.db,
		Publisher: c.dispatcher,
		Approval:  &c.config.Approval,
		Metrics:   c.workflowMetrics(),
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) startWorkers(ctx context.Context) error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:     c.repositories,
		Metrics:   c.workflowMetrics(),
		WorkerCfg: &c.config.Worker,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	if err := workers.Start(ctx); err != nil {
		return err
	}
	c.workers = workers
	c.onClose("workers", workers.Stop)
	return nil
}

func (c *Container) workflowMetrics() *metrics.Metrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Metrics
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Identity returns the bearer token resolver.
func (c *Container) Identity() *identity.JWTResolver {
	return c.identity
}

// Metrics returns the metrics bundle, nil when disabled.
func (c *Container) Metrics() *MetricsBundle {
	return c.metrics
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// KeyValueLogger is the logging surface of the application and interface layers.
type KeyValueLogger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NewLoggerAdapter wraps a zap logger for packages that take a key-value Logger.
func NewLoggerAdapter(logger *zap.Logger) KeyValueLogger {
	return &zapLoggerAdapter{logger: logger}
}

// zapLoggerAdapter adapts zap.Logger to KeyValueLogger.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
