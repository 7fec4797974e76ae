package requisition

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procure-approval/internal/domain/workflow"
)

// LineItem is one priced line of a supplier quote. Totals are always derived.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Total returns quantity * unit price
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Quote is one supplier's proposal (cota) competing to fund the requisition.
type Quote struct {
	ID       uuid.UUID      `json:"id"`
	Supplier string         `json:"supplier"`
	Items    []LineItem     `json:"items"`
	State    workflow.State `json:"state"`

	// ManagerApprovals is an ordered set, rebuilt from approval records on load.
	ManagerApprovals []string `json:"manager_approvals"`

	DirectorApproved bool       `json:"director_approved"`
	DirectorID       string     `json:"director_id,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
}

// QuoteDraft is the creation-time input for a quote
type QuoteDraft struct {
	Supplier string
	Items    []LineItem
}

// Total returns the sum of all line totals
func (q *Quote) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range q.Items {
		total = total.Add(item.Total())
	}
	return total
}

// IsOpen reports whether the quote still accepts decisions
func (q *Quote) IsOpen() bool {
	return q.State == workflow.StateOpen
}

// HasManagerApproval reports whether managerID already approved this quote
func (q *Quote) HasManagerApproval(managerID string) bool {
	for _, m := range q.ManagerApprovals {
		if m == managerID {
			return true
		}
	}
	return false
}
