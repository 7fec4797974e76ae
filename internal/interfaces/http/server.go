// Package http provides the HTTP adapter for the requisition services.
// Handlers translate requests into service calls and service errors into status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Dependencies are the application ports the HTTP layer calls into
type Dependencies struct {
	Requisitions service.RequisitionService
	Decisions    service.DecisionService
	Identity     port.IdentityResolver
	Exporter     port.ReportExporter

	// Metrics is mounted at /metrics when set
	Metrics http.Handler
}

// Server serves the requisition API until its context ends
type Server struct {
	config ServerConfig
	router *gin.Engine
	logger Logger
	http   *http.Server
}

// NewServer wires middleware and routes
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	SetupValidator()

	router := gin.New()
	router.Use(requestIDMiddleware(), gin.Recovery(), accessLogMiddleware(logger))
	mountRoutes(router, deps, logger)

	return &Server{config: config, router: router, logger: logger}
}

func mountRoutes(router *gin.Engine, deps Dependencies, logger Logger) {
	h := NewHandlers(deps.Requisitions, deps.Decisions, deps.Exporter, logger)

	router.GET("/health", h.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := router.Group("/api", authMiddleware(deps.Identity, logger))

	reqs := api.Group("/requisitions")
	reqs.POST("", h.CreateRequisition)
	reqs.GET("/mine", h.ListMine)
	reqs.GET("/inbox", h.ListInbox)
	reqs.GET("/:id", h.GetRequisition)
	reqs.GET("/:id/records", h.ListRecords)
	reqs.GET("/:id/export", h.ExportRequisition)
	reqs.POST("/:id/quotes/:quoteId/manager", h.ManagerDecision)
	reqs.POST("/:id/quotes/:quoteId/director", h.DirectorDecision)

	api.POST("/master/requisitions/:id/quotes/:quoteId/:role", h.MasterDecision)
}

// Start listens on the configured address and serves until ctx is done,
// then drains in-flight requests within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.logger.Info("HTTP server listening", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.http.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server failed", "error", err)
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop drains in-flight requests
func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}
