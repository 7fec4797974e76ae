package port

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

var (
	// ErrNotFound is returned when a requisition does not exist
	ErrNotFound = errors.New("requisition not found")

	// ErrConcurrentModification is returned when a conditional save finds a newer version
	ErrConcurrentModification = errors.New("requisition was modified concurrently")
)

// ListFilter narrows list queries
type ListFilter struct {
	Status requisition.Status
	Limit  int
	Offset int
}

// RequisitionRepository persists the requisition aggregate as a whole
type RequisitionRepository interface {
	// Create inserts a new requisition with its quotes, allocations and managers
	Create(ctx context.Context, req *requisition.Requisition) error

	// GetByID loads the aggregate with its decision log and rehydrates it.
	// Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*requisition.Requisition, error)

	// Save writes quote states, status and new records. It succeeds only when
	// the stored version equals req.Version, then increments it.
	Save(ctx context.Context, req *requisition.Requisition) error

	// ListByRequester returns requisitions opened by userID, newest first
	ListByRequester(ctx context.Context, userID string, filter ListFilter) ([]*requisition.Requisition, error)

	// ListByApprover returns requisitions where userID is an assigned manager or the director
	ListByApprover(ctx context.Context, userID string, filter ListFilter) ([]*requisition.Requisition, error)

	// CountByStatus returns the number of requisitions per status
	CountByStatus(ctx context.Context) (map[requisition.Status]int, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type noRetryKey struct{}

// WithoutRetry marks ctx so a TransactionManager runs the unit of work at most
// once. Decision writes use it: a busy database is reported to the caller
// instead of recording the decision again.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

// RetryAllowed reports whether ctx permits a TransactionManager to re-run work
func RetryAllowed(ctx context.Context) bool {
	noRetry, _ := ctx.Value(noRetryKey{}).(bool)
	return !noRetry
}
