package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/event"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CreateInput is what a requester submits. The requester is always the caller.
type CreateInput struct {
	Kind        requisition.Kind
	Description string
	DirectorID  string
	Managers    []string
	Allocations []requisition.Allocation
	Quotes      []requisition.QuoteDraft
}

// View is a requisition together with what the caller may do on it
type View struct {
	Requisition  *requisition.Requisition `json:"requisition"`
	Capabilities authz.Capabilities       `json:"capabilities"`
}

// RequisitionService handles creation and read access
type RequisitionService interface {
	Create(ctx context.Context, id authz.Identity, in CreateInput) (*requisition.Requisition, error)
	Get(ctx context.Context, id authz.Identity, requisitionID uuid.UUID) (*View, error)
	ListMine(ctx context.Context, id authz.Identity, filter port.ListFilter) ([]*requisition.Requisition, error)
	ListInbox(ctx context.Context, id authz.Identity, filter port.ListFilter) ([]*requisition.Requisition, error)
	Records(ctx context.Context, id authz.Identity, requisitionID uuid.UUID) ([]requisition.ApprovalRecord, error)
	Export(ctx context.Context, id authz.Identity, requisitionID uuid.UUID, w io.Writer) error
}

type requisitionServiceImpl struct {
	repo      port.RequisitionRepository
	txManager port.TransactionManager
	publisher port.EventPublisher
	exporter  port.ReportExporter
	logger    Logger
	now       func() time.Time
}

// NewRequisitionService creates a new RequisitionService
func NewRequisitionService(
	repo port.RequisitionRepository,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	exporter port.ReportExporter,
	logger Logger,
) RequisitionService {
	return &requisitionServiceImpl{
		repo:      repo,
		txManager: txManager,
		publisher: publisher,
		exporter:  exporter,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new PENDING requisition
func (s *requisitionServiceImpl) Create(ctx context.Context, id authz.Identity, in CreateInput) (*requisition.Requisition, error) {
	if id.UserID == "" {
		return nil, port.ErrUnauthenticated
	}

	req, err := requisition.New(requisition.NewParams{
		Kind:        in.Kind,
		Description: in.Description,
		RequesterID: id.UserID,
		DirectorID:  in.DirectorID,
		Managers:    in.Managers,
		Allocations: in.Allocations,
		Quotes:      in.Quotes,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create requisition: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create requisition", "requester", id.UserID, "error", err)
		return nil, err
	}

	s.logger.Info("Requisition created",
		"requisition_id", req.ID,
		"kind", req.Kind,
		"requester", id.UserID,
		"quotes", len(req.Quotes),
		"managers", len(req.Managers),
	)

	if s.publisher != nil {
		evt := event.NewEvent(event.TypeRequisitionCreated, req.ID, id.UserID, map[string]interface{}{
			"kind":   string(req.Kind),
			"quotes": len(req.Quotes),
		})
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Error("Failed to publish creation event", "requisition_id", req.ID, "error", err)
		}
	}
	return req, nil
}

// Get returns the requisition if the caller may view it
func (s *requisitionServiceImpl) Get(ctx context.Context, id authz.Identity, requisitionID uuid.UUID) (*View, error) {
	req, actor, err := s.load(ctx, id, requisitionID)
	if err != nil {
		return nil, err
	}
	return &View{Requisition: req, Capabilities: authz.CanAct(actor)}, nil
}

// ListMine returns requisitions the caller opened
func (s *requisitionServiceImpl) ListMine(ctx context.Context, id authz.Identity, filter port.ListFilter) ([]*requisition.Requisition, error) {
	if id.UserID == "" {
		return nil, port.ErrUnauthenticated
	}
	return s.repo.ListByRequester(ctx, id.UserID, normalizeFilter(filter))
}

// ListInbox returns requisitions the caller is assigned to decide
func (s *requisitionServiceImpl) ListInbox(ctx context.Context, id authz.Identity, filter port.ListFilter) ([]*requisition.Requisition, error) {
	if id.UserID == "" {
		return nil, port.ErrUnauthenticated
	}
	return s.repo.ListByApprover(ctx, id.UserID, normalizeFilter(filter))
}

// Records returns the decision log in the order it was written
func (s *requisitionServiceImpl) Records(ctx context.Context, id authz.Identity, requisitionID uuid.UUID) ([]requisition.ApprovalRecord, error) {
	req, _, err := s.load(ctx, id, requisitionID)
	if err != nil {
		return nil, err
	}
	return req.Records, nil
}

// Export writes the decision sheet for the requisition
func (s *requisitionServiceImpl) Export(ctx context.Context, id authz.Identity, requisitionID uuid.UUID, w io.Writer) error {
	req, _, err := s.load(ctx, id, requisitionID)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(w, req); err != nil {
		s.logger.Error("Failed to export requisition", "requisition_id", requisitionID, "error", err)
		return fmt.Errorf("export requisition: %w", err)
	}
	return nil
}

func (s *requisitionServiceImpl) load(ctx context.Context, id authz.Identity, requisitionID uuid.UUID) (*requisition.Requisition, authz.Context, error) {
	req, err := s.repo.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, authz.Context{}, err
	}
	actor := authz.NewContext(id, req)
	if !authz.CanView(actor, req) {
		return nil, authz.Context{}, fmt.Errorf("%w: %s may not view requisition %s", authz.ErrNotAuthorized, id.UserID, requisitionID)
	}
	return req, actor, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func normalizeFilter(f port.ListFilter) port.ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
