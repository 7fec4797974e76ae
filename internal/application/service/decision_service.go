package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// DecisionObserver receives one observation per decision attempt
type DecisionObserver interface {
	ObserveDecision(seat string, result string, elapsed time.Duration)
}

// DecisionService serializes decisions per requisition and persists their outcome
type DecisionService interface {
	DecideAsManager(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, decision requisition.Decision) (*approval.Outcome, error)
	DecideAsDirector(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, decision requisition.Decision) (*approval.Outcome, error)
	DecideAsMaster(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, seat requisition.ActingRole, decision requisition.Decision, onBehalfOf string) (*approval.Outcome, error)
}

type decisionServiceImpl struct {
	repo        port.RequisitionRepository
	txManager   port.TransactionManager
	publisher   port.EventPublisher
	coordinator *approval.Coordinator
	locks       *keyedLock
	observer    DecisionObserver
	logger      Logger
}

// DecisionOption configures the decision service
type DecisionOption func(*decisionServiceImpl)

// WithDecisionObserver attaches metrics to the decision path
func WithDecisionObserver(o DecisionObserver) DecisionOption {
	return func(s *decisionServiceImpl) {
		s.observer = o
	}
}

// NewDecisionService creates a new DecisionService
func NewDecisionService(
	repo port.RequisitionRepository,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	coordinator *approval.Coordinator,
	logger Logger,
	opts ...DecisionOption,
) DecisionService {
	s := &decisionServiceImpl{
		repo:        repo,
		txManager:   txManager,
		publisher:   publisher,
		coordinator: coordinator,
		locks:       newKeyedLock(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *decisionServiceImpl) DecideAsManager(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, decision requisition.Decision) (*approval.Outcome, error) {
	return s.decide(ctx, id, requisitionID, "manager", func(req *requisition.Requisition, actor authz.Context) (*approval.Outcome, error) {
		return s.coordinator.SubmitManagerDecision(req, quoteID, actor, decision)
	})
}

func (s *decisionServiceImpl) DecideAsDirector(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, decision requisition.Decision) (*approval.Outcome, error) {
	return s.decide(ctx, id, requisitionID, "director", func(req *requisition.Requisition, actor authz.Context) (*approval.Outcome, error) {
		return s.coordinator.SubmitDirectorDecision(req, quoteID, actor, decision)
	})
}

func (s *decisionServiceImpl) DecideAsMaster(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, seat requisition.ActingRole, decision requisition.Decision, onBehalfOf string) (*approval.Outcome, error) {
	return s.decide(ctx, id, requisitionID, "master_"+string(seat), func(req *requisition.Requisition, actor authz.Context) (*approval.Outcome, error) {
		return s.coordinator.SubmitMasterDecision(req, quoteID, actor, seat, decision, onBehalfOf)
	})
}

// decide runs lock -> load -> decide -> conditional save -> publish. The lock
// covers the whole sequence so consensus is never read from a stale aggregate.
func (s *decisionServiceImpl) decide(
	ctx context.Context,
	id authz.Identity,
	requisitionID uuid.UUID,
	seat string,
	fn func(req *requisition.Requisition, actor authz.Context) (*approval.Outcome, error),
) (out *approval.Outcome, err error) {
	start := time.Now()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveDecision(seat, decisionResult(out, err), time.Since(start))
		}
	}()

	unlock := s.locks.Lock(requisitionID)
	defer unlock()

	req, err := s.repo.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	actor := authz.NewContext(id, req)
	out, err = fn(req, actor)
	if err != nil {
		s.logger.Info("Decision refused",
			"requisition_id", requisitionID,
			"actor", id.UserID,
			"seat", seat,
			"reason", err.Error(),
		)
		return nil, err
	}
	if !out.Changed() {
		return out, nil
	}

	// Save raises req.Version, so the write is not re-run on a busy database.
	err = s.txManager.WithTransaction(port.WithoutRetry(ctx), func(txCtx context.Context) error {
		if err := s.repo.Save(txCtx, req); err != nil {
			return fmt.Errorf("save requisition: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to persist decision",
			"requisition_id", requisitionID,
			"actor", id.UserID,
			"seat", seat,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Decision recorded",
		"requisition_id", requisitionID,
		"quote_id", out.QuoteID,
		"actor", id.UserID,
		"seat", seat,
		"records", len(out.Records),
		"status", out.Status,
	)

	if s.publisher != nil {
		if pubErr := s.publisher.Publish(ctx, outcomeEvents(req, out)...); pubErr != nil {
			s.logger.Error("Failed to publish decision events", "requisition_id", requisitionID, "error", pubErr)
		}
	}
	return out, nil
}

func decisionResult(out *approval.Outcome, err error) string {
	switch {
	case err == nil && out != nil && !out.Changed():
		return "noop"
	case err == nil:
		return "ok"
	case errors.Is(err, authz.ErrNotAuthorized):
		return "forbidden"
	case errors.Is(err, requisition.ErrConsensusNotReached),
		errors.Is(err, requisition.ErrQuoteAlreadyChosen),
		errors.Is(err, requisition.ErrQuoteClosed),
		errors.Is(err, port.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, port.ErrNotFound),
		errors.Is(err, requisition.ErrQuoteNotFound):
		return "not_found"
	case errors.Is(err, approval.ErrInvalidIntent):
		return "invalid"
	default:
		return "error"
	}
}
