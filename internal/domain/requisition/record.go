package requisition

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the intent an actor submits for a quote
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// IsValid reports whether d is a known decision
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ActingRole is the workflow seat an actor occupied when deciding
type ActingRole string

const (
	ActingManager  ActingRole = "manager"
	ActingDirector ActingRole = "director"
)

// IsValid reports whether r is a known acting role
func (r ActingRole) IsValid() bool {
	return r == ActingManager || r == ActingDirector
}

// ApprovalRecord is an immutable audit fact. Manager approvals are reconstructed from these.
type ApprovalRecord struct {
	ID            uuid.UUID  `json:"id"`
	RequisitionID uuid.UUID  `json:"requisition_id"`
	QuoteID       uuid.UUID  `json:"quote_id"`
	ActorID       string     `json:"actor_id"`
	ActorRole     ActingRole `json:"actor_role"`
	// OnBehalfOf is set when a master stands in for an assigned manager.
	OnBehalfOf string    `json:"on_behalf_of,omitempty"`
	Master     bool      `json:"master"`
	Decision   Decision  `json:"decision"`
	CreatedAt  time.Time `json:"created_at"`
}

// Subject returns the identity whose seat the decision counts for
func (r ApprovalRecord) Subject() string {
	if r.OnBehalfOf != "" {
		return r.OnBehalfOf
	}
	return r.ActorID
}
