package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// StatusCounter is the read side the worker polls
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[requisition.Status]int, error)
}

// StatusSink receives the latest counts
type StatusSink interface {
	SetRequisitions(status string, n int)
}

// StatusWorkerConfig holds configuration for the status worker
type StatusWorkerConfig struct {
	PollInterval time.Duration
	QueryTimeout time.Duration
}

// DefaultStatusWorkerConfig returns default configuration
func DefaultStatusWorkerConfig() StatusWorkerConfig {
	return StatusWorkerConfig{
		PollInterval: 30 * time.Second,
		QueryTimeout: 5 * time.Second,
	}
}

// StatusWorker periodically publishes requisition counts per status
type StatusWorker struct {
	config  StatusWorkerConfig
	counter StatusCounter
	sink    StatusSink
	logger  *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	runs      int
	lastError error
}

// NewStatusWorker creates a new status worker
func NewStatusWorker(config StatusWorkerConfig, counter StatusCounter, sink StatusSink, logger *zap.Logger) *StatusWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStatusWorkerConfig().PollInterval
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultStatusWorkerConfig().QueryTimeout
	}
	return &StatusWorker{
		config:  config,
		counter: counter,
		sink:    sink,
		logger:  logger,
	}
}

// Start refreshes once and then polls in the background
func (w *StatusWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("status worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("StatusWorker started", zap.Duration("poll_interval", w.config.PollInterval))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for it to exit
func (w *StatusWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("StatusWorker stopped", zap.Int("runs", w.Runs()))
	return nil
}

// Name returns the worker name for identification
func (w *StatusWorker) Name() string {
	return "StatusWorker"
}

// Runs returns how many refreshes completed
func (w *StatusWorker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// LastError returns the most recent refresh error
func (w *StatusWorker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *StatusWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// refresh queries the counts once and pushes them to the sink
func (w *StatusWorker) refresh(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, w.config.QueryTimeout)
	defer cancel()

	counts, err := w.counter.CountByStatus(queryCtx)

	w.mu.Lock()
	w.runs++
	w.lastError = err
	w.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to count requisitions", zap.Error(err))
		}
		return
	}
	for status, n := range counts {
		w.sink.SetRequisitions(string(status), n)
	}
}
