// Package approval implements the decision rules for one requisition: who may
// approve or reject which quote, and when director approval is allowed.
// It is pure: callers load the aggregate, hold its lock and persist the result.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// ErrInvalidIntent is returned for malformed decision requests
var ErrInvalidIntent = errors.New("invalid decision intent")

// Outcome describes what a decision changed
type Outcome struct {
	RequisitionID  uuid.UUID
	QuoteID        uuid.UUID
	Records        []requisition.ApprovalRecord
	PreviousStatus requisition.Status
	Status         requisition.Status
}

// Changed reports whether anything was recorded. Repeated approvals are no-ops.
func (o *Outcome) Changed() bool {
	return len(o.Records) > 0
}

// StatusChanged reports whether the requisition left PENDING with this decision
func (o *Outcome) StatusChanged() bool {
	return o.PreviousStatus != o.Status
}

// Coordinator applies manager, director and master decisions to a requisition
type Coordinator struct {
	now          func() time.Time
	masterBypass bool
}

// Option configures the coordinator
type Option func(*Coordinator)

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithMasterConsensusBypass controls whether a master approving in the
// director seat skips the manager consensus check.
func WithMasterConsensusBypass(bypass bool) Option {
	return func(c *Coordinator) {
		c.masterBypass = bypass
	}
}

// NewCoordinator creates a coordinator. Masters bypass consensus by default.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		now:          func() time.Time { return time.Now().UTC() },
		masterBypass: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MasterBypassesConsensus reports the configured master policy
func (c *Coordinator) MasterBypassesConsensus() bool {
	return c.masterBypass
}

// SubmitManagerDecision applies an assigned manager's decision on a quote
func (c *Coordinator) SubmitManagerDecision(req *requisition.Requisition, quoteID uuid.UUID, actor authz.Context, decision requisition.Decision) (*Outcome, error) {
	if err := validateDecision(decision); err != nil {
		return nil, err
	}
	if err := authz.RequireManager(actor); err != nil {
		return nil, err
	}

	out := c.begin(req, quoteID)
	rec := requisition.ApprovalRecord{
		QuoteID:   quoteID,
		ActorID:   actor.ActorID,
		ActorRole: requisition.ActingManager,
		Decision:  decision,
	}

	if decision == requisition.DecisionReject {
		if err := c.reject(req, out, rec); err != nil {
			return nil, err
		}
		return c.finish(req, out), nil
	}

	if err := c.approveAsManager(req, out, rec, actor.ActorID); err != nil {
		return nil, err
	}
	return c.finish(req, out), nil
}

// SubmitDirectorDecision applies the assigned director's decision on a quote.
// Approval requires every assigned manager to have approved the same quote.
func (c *Coordinator) SubmitDirectorDecision(req *requisition.Requisition, quoteID uuid.UUID, actor authz.Context, decision requisition.Decision) (*Outcome, error) {
	if err := validateDecision(decision); err != nil {
		return nil, err
	}
	if err := authz.RequireDirector(actor); err != nil {
		return nil, err
	}

	out := c.begin(req, quoteID)
	rec := requisition.ApprovalRecord{
		QuoteID:   quoteID,
		ActorID:   actor.ActorID,
		ActorRole: requisition.ActingDirector,
		Decision:  decision,
	}

	if decision == requisition.DecisionReject {
		if err := c.reject(req, out, rec); err != nil {
			return nil, err
		}
		return c.finish(req, out), nil
	}

	at := c.now()
	if err := req.RecordDirectorApproval(quoteID, actor.ActorID, at); err != nil {
		return nil, err
	}
	rec.CreatedAt = at
	out.Records = append(out.Records, req.AppendRecord(rec))
	return c.finish(req, out), nil
}

// SubmitMasterDecision lets a master stand in for any manager or for the
// director without being assigned. In the manager seat, onBehalfOf names the
// manager being replaced; when empty the approval is recorded for every
// manager who has not approved the quote yet.
func (c *Coordinator) SubmitMasterDecision(req *requisition.Requisition, quoteID uuid.UUID, actor authz.Context, seat requisition.ActingRole, decision requisition.Decision, onBehalfOf string) (*Outcome, error) {
	if err := validateDecision(decision); err != nil {
		return nil, err
	}
	if !seat.IsValid() {
		return nil, fmt.Errorf("%w: unknown seat %q", ErrInvalidIntent, seat)
	}
	if err := authz.RequireMaster(actor); err != nil {
		return nil, err
	}
	if onBehalfOf != "" && (seat != requisition.ActingManager || !req.IsManager(onBehalfOf)) {
		return nil, fmt.Errorf("%w: %s is not an assigned manager", ErrInvalidIntent, onBehalfOf)
	}

	out := c.begin(req, quoteID)
	rec := requisition.ApprovalRecord{
		QuoteID:    quoteID,
		ActorID:    actor.ActorID,
		ActorRole:  seat,
		OnBehalfOf: onBehalfOf,
		Master:     true,
		Decision:   decision,
	}

	if decision == requisition.DecisionReject {
		if err := c.reject(req, out, rec); err != nil {
			return nil, err
		}
		return c.finish(req, out), nil
	}

	if seat == requisition.ActingDirector {
		at := c.now()
		var err error
		if c.masterBypass {
			err = req.OverrideDirectorApproval(quoteID, actor.ActorID, at)
		} else {
			err = req.RecordDirectorApproval(quoteID, actor.ActorID, at)
		}
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = at
		out.Records = append(out.Records, req.AppendRecord(rec))
		return c.finish(req, out), nil
	}

	targets := []string{onBehalfOf}
	if onBehalfOf == "" {
		outstanding, err := requisition.OutstandingManagers(req, quoteID)
		if err != nil {
			return nil, err
		}
		targets = outstanding
	}
	for _, managerID := range targets {
		stand := rec
		stand.OnBehalfOf = managerID
		if err := c.approveAsManager(req, out, stand, managerID); err != nil {
			return nil, err
		}
	}
	if len(targets) == 0 {
		// Nobody left to stand in for; still surface a closed quote.
		q, err := req.Quote(quoteID)
		if err != nil {
			return nil, err
		}
		if !q.IsOpen() {
			return nil, fmt.Errorf("%w: quote %s is %s", requisition.ErrQuoteClosed, q.ID, q.State)
		}
	}
	return c.finish(req, out), nil
}

func (c *Coordinator) approveAsManager(req *requisition.Requisition, out *Outcome, rec requisition.ApprovalRecord, managerID string) error {
	added, err := req.RecordApproval(rec.QuoteID, managerID)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	rec.CreatedAt = c.now()
	out.Records = append(out.Records, req.AppendRecord(rec))
	return nil
}

func (c *Coordinator) reject(req *requisition.Requisition, out *Outcome, rec requisition.ApprovalRecord) error {
	at := c.now()
	if err := req.RecordRejection(rec.QuoteID, rec.ActorID, at); err != nil {
		return err
	}
	rec.CreatedAt = at
	out.Records = append(out.Records, req.AppendRecord(rec))
	return nil
}

func (c *Coordinator) begin(req *requisition.Requisition, quoteID uuid.UUID) *Outcome {
	return &Outcome{
		RequisitionID:  req.ID,
		QuoteID:        quoteID,
		PreviousStatus: req.Status,
	}
}

func (c *Coordinator) finish(req *requisition.Requisition, out *Outcome) *Outcome {
	out.Status = req.Status
	return out
}

func validateDecision(d requisition.Decision) error {
	if !d.IsValid() {
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidIntent, d)
	}
	return nil
}
