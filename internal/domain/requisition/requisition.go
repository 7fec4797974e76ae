// Package requisition holds the requisition aggregate: its department allocation,
// competing supplier quotes, assigned approvers and the append-only decision log.
package requisition

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procure-approval/internal/domain/workflow"
)

// Kind identifies the portal module a requisition belongs to
type Kind string

const (
	KindExpense   Kind = "expense"
	KindFuel      Kind = "fuel"
	KindInventory Kind = "inventory"
	KindClient    Kind = "client"
)

// IsValid reports whether k is a known module
func (k Kind) IsValid() bool {
	switch k {
	case KindExpense, KindFuel, KindInventory, KindClient:
		return true
	}
	return false
}

// MultiTier reports whether the module runs the full manager + director flow.
// The other modules are single-approver: the director alone decides one quote.
func (k Kind) MultiTier() bool {
	return k == KindExpense
}

// Status is derived from quote states; only the aggregate itself assigns it.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsValid reports whether s is a known requisition status
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// IsTerminal reports whether the requisition left PENDING
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Requisition is the aggregate root. Allocations, managers and quotes are frozen
// after creation; quote states and the record log change only through the
// Record* methods.
type Requisition struct {
	ID          uuid.UUID    `json:"id"`
	Kind        Kind         `json:"kind"`
	Description string       `json:"description"`
	RequesterID string       `json:"requester_id"`
	CreatedAt   time.Time    `json:"created_at"`
	DirectorID  string       `json:"director_id"`
	Managers    []string     `json:"managers"`
	Allocations []Allocation `json:"allocations"`

	Ledger

	Status    Status     `json:"status"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`

	Records []ApprovalRecord `json:"-"`

	// Version increments on every committed change; used for conditional saves.
	Version int64 `json:"version"`
}

// NewParams is the creation input submitted by a requester
type NewParams struct {
	Kind        Kind
	Description string
	RequesterID string
	DirectorID  string
	Managers    []string
	Allocations []Allocation
	Quotes      []QuoteDraft
	CreatedAt   time.Time
}

// New validates the input and returns a PENDING requisition with all quotes OPEN
func New(p NewParams) (*Requisition, error) {
	if p.Kind == "" {
		p.Kind = KindExpense
	}
	if !p.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequisition, p.Kind)
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidRequisition)
	}
	if p.RequesterID == "" {
		return nil, fmt.Errorf("%w: requester is required", ErrInvalidRequisition)
	}
	if p.DirectorID == "" {
		return nil, fmt.Errorf("%w: director is required", ErrInvalidRequisition)
	}
	if err := validateManagers(p.Kind, p.DirectorID, p.Managers); err != nil {
		return nil, err
	}
	if err := validateQuotes(p.Kind, p.Quotes); err != nil {
		return nil, err
	}
	if err := ValidateAllocations(p.Allocations); err != nil {
		return nil, err
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	req := &Requisition{
		ID:          uuid.New(),
		Kind:        p.Kind,
		Description: strings.TrimSpace(p.Description),
		RequesterID: p.RequesterID,
		CreatedAt:   createdAt,
		DirectorID:  p.DirectorID,
		Managers:    append([]string{}, p.Managers...),
		Allocations: append([]Allocation{}, p.Allocations...),
		Status:      StatusPending,
	}

	for _, d := range p.Quotes {
		req.Quotes = append(req.Quotes, &Quote{
			ID:               uuid.New(),
			Supplier:         strings.TrimSpace(d.Supplier),
			Items:            append([]LineItem{}, d.Items...),
			State:            workflow.StateOpen,
			ManagerApprovals: []string{},
		})
	}

	return req, nil
}

func validateManagers(kind Kind, directorID string, managers []string) error {
	if !kind.MultiTier() {
		if len(managers) > 0 {
			return fmt.Errorf("%w: %s requisitions are decided by the director alone", ErrInvalidRequisition, kind)
		}
		return nil
	}

	if len(managers) == 0 {
		return fmt.Errorf("%w: at least one manager must be assigned", ErrInvalidRequisition)
	}
	seen := make(map[string]bool, len(managers))
	for _, m := range managers {
		if m == "" {
			return fmt.Errorf("%w: empty manager id", ErrInvalidRequisition)
		}
		if seen[m] {
			return fmt.Errorf("%w: manager %s assigned twice", ErrInvalidRequisition, m)
		}
		if m == directorID {
			return fmt.Errorf("%w: director %s cannot also be a manager", ErrInvalidRequisition, m)
		}
		seen[m] = true
	}
	return nil
}

func validateQuotes(kind Kind, quotes []QuoteDraft) error {
	if len(quotes) == 0 {
		return fmt.Errorf("%w: at least one quote is required", ErrInvalidRequisition)
	}
	if !kind.MultiTier() && len(quotes) != 1 {
		return fmt.Errorf("%w: %s requisitions carry exactly one quote", ErrInvalidRequisition, kind)
	}

	for i, q := range quotes {
		if strings.TrimSpace(q.Supplier) == "" {
			return fmt.Errorf("%w: quote %d has no supplier", ErrInvalidRequisition, i)
		}
		if len(q.Items) == 0 {
			return fmt.Errorf("%w: quote %d has no line items", ErrInvalidRequisition, i)
		}
		for j, item := range q.Items {
			if !item.Quantity.GreaterThan(decimal.Zero) {
				return fmt.Errorf("%w: quote %d item %d quantity must be positive", ErrInvalidRequisition, i, j)
			}
			if item.UnitPrice.IsNegative() {
				return fmt.Errorf("%w: quote %d item %d unit price is negative", ErrInvalidRequisition, i, j)
			}
		}
	}
	return nil
}

// IsManager reports whether userID is an assigned manager
func (r *Requisition) IsManager(userID string) bool {
	for _, m := range r.Managers {
		if m == userID {
			return true
		}
	}
	return false
}

// IsDirector reports whether userID is the assigned director
func (r *Requisition) IsDirector(userID string) bool {
	return userID != "" && r.DirectorID == userID
}

// RecordApproval adds a manager approval to the quote. It returns false when
// the manager had already approved the quote; nothing changes in that case.
func (r *Requisition) RecordApproval(quoteID uuid.UUID, managerID string) (bool, error) {
	return r.recordApproval(quoteID, managerID)
}

// RecordRejection closes the quote and re-derives the requisition status
func (r *Requisition) RecordRejection(quoteID uuid.UUID, actorID string, at time.Time) error {
	if err := r.recordRejection(quoteID, at); err != nil {
		return err
	}
	r.refreshStatus(actorID, at)
	return nil
}

// RecordDirectorApproval funds the quote once every assigned manager approved it
func (r *Requisition) RecordDirectorApproval(quoteID uuid.UUID, directorID string, at time.Time) error {
	current, required, err := ConsensusCount(r, quoteID)
	if err != nil {
		return err
	}
	q, _ := r.Quote(quoteID)
	if !q.IsOpen() {
		return fmt.Errorf("%w: quote %s is %s", ErrQuoteClosed, q.ID, q.State)
	}
	if current < required {
		return &ConsensusNotReachedError{QuoteID: quoteID, Current: current, Required: required}
	}
	return r.OverrideDirectorApproval(quoteID, directorID, at)
}

// OverrideDirectorApproval funds the quote without consulting manager consensus
func (r *Requisition) OverrideDirectorApproval(quoteID uuid.UUID, directorID string, at time.Time) error {
	if err := r.recordDirectorApproval(quoteID, directorID, at); err != nil {
		return err
	}
	r.refreshStatus(directorID, at)
	return nil
}

// AppendRecord adds an audit fact to the decision log
func (r *Requisition) AppendRecord(rec ApprovalRecord) ApprovalRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.RequisitionID = r.ID
	r.Records = append(r.Records, rec)
	return rec
}

// Rehydrate rebuilds manager approvals from the decision log after loading
// from storage and re-derives the status from quote states.
func (r *Requisition) Rehydrate() {
	for _, q := range r.Quotes {
		q.ManagerApprovals = []string{}
	}
	for _, rec := range r.Records {
		if rec.ActorRole != ActingManager || rec.Decision != DecisionApprove {
			continue
		}
		q, err := r.Quote(rec.QuoteID)
		if err != nil || q.HasManagerApproval(rec.Subject()) {
			continue
		}
		q.ManagerApprovals = append(q.ManagerApprovals, rec.Subject())
	}
	r.Status = r.deriveStatus()
}

func (r *Requisition) deriveStatus() Status {
	if r.ApprovedQuote() != nil {
		return StatusApproved
	}
	for _, q := range r.Quotes {
		if q.IsOpen() {
			return StatusPending
		}
	}
	return StatusRejected
}

// refreshStatus re-derives the status and stamps the decision the first time
// it leaves PENDING.
func (r *Requisition) refreshStatus(actorID string, at time.Time) {
	next := r.deriveStatus()
	if r.Status == StatusPending && next != StatusPending {
		decided := at
		r.DecidedAt = &decided
		r.DecidedBy = actorID
	}
	r.Status = next
}
