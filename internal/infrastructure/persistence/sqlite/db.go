// Package sqlite runs repository work inside SQLite transactions carried on
// the context.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/application/port"
)

type txKey struct{}

// DB is the port.TransactionManager for SQLite. A unit of work that hits a
// busy or locked database is rolled back and run again, up to maxRetries times.
type DB struct {
	*sql.DB
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

// Option configures DB
type Option func(*DB)

// WithBusyRetry sets how often a busy transaction is retried and the base
// delay between attempts. The delay grows linearly with the attempt number.
func WithBusyRetry(maxRetries int, backoff time.Duration) Option {
	return func(db *DB) {
		db.maxRetries = maxRetries
		db.backoff = backoff
	}
}

// NewDB wraps an open SQLite handle
func NewDB(sqlDB *sql.DB, logger *zap.Logger, opts ...Option) *DB {
	db := &DB{
		DB:         sqlDB,
		logger:     logger,
		maxRetries: 3,
		backoff:    25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// WithTransaction runs fn in a transaction. A transaction already on ctx is
// joined and never retried here; the outermost caller owns retries. Work on a
// ctx marked with port.WithoutRetry runs once.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	maxRetries := db.maxRetries
	if !port.RetryAllowed(ctx) {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		err := db.runOnce(ctx, fn)
		if err == nil || !IsBusy(err) || attempt >= maxRetries {
			return err
		}

		db.logger.Warn("Database busy, retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * db.backoff):
		}
	}
}

func (db *DB) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsBusy reports whether err is SQLite refusing work because another
// connection holds the lock.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFrom returns the transaction on ctx, or db when there is none
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTransaction reports whether ctx carries an open transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

var _ port.TransactionManager = (*DB)(nil)
