package requisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/domain/workflow"
)

// Ledger owns the competing quotes of one requisition and is the single place
// where quote-level exclusivity is enforced.
type Ledger struct {
	Quotes []*Quote `json:"quotes"`
}

// Quote returns the quote with the given id
func (l *Ledger) Quote(id uuid.UUID) (*Quote, error) {
	for _, q := range l.Quotes {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, id)
}

// ChosenQuote returns the open quote that already holds at least one manager
// approval. The first quote to be approved by any manager is the only one the
// remaining managers may approve.
func (l *Ledger) ChosenQuote() *Quote {
	for _, q := range l.Quotes {
		if q.IsOpen() && len(q.ManagerApprovals) > 0 {
			return q
		}
	}
	return nil
}

// ApprovedQuote returns the funded quote, if any
func (l *Ledger) ApprovedQuote() *Quote {
	for _, q := range l.Quotes {
		if q.State == workflow.StateApproved {
			return q
		}
	}
	return nil
}

// recordApproval appends managerID to the quote's approvals. It reports false
// without error when the manager had already approved the same quote.
func (l *Ledger) recordApproval(quoteID uuid.UUID, managerID string) (bool, error) {
	q, err := l.Quote(quoteID)
	if err != nil {
		return false, err
	}
	if !q.IsOpen() {
		return false, fmt.Errorf("%w: quote %s is %s", ErrQuoteClosed, q.ID, q.State)
	}
	if q.HasManagerApproval(managerID) {
		return false, nil
	}
	if chosen := l.ChosenQuote(); chosen != nil && chosen.ID != q.ID {
		return false, &QuoteAlreadyChosenError{Requested: q.ID, Chosen: chosen.ID}
	}

	q.ManagerApprovals = append(q.ManagerApprovals, managerID)
	return true, nil
}

// recordRejection closes the quote immediately. A single empowered actor suffices.
func (l *Ledger) recordRejection(quoteID uuid.UUID, at time.Time) error {
	q, err := l.Quote(quoteID)
	if err != nil {
		return err
	}
	if err := transition(q, workflow.TriggerReject, at); err != nil {
		return err
	}
	return nil
}

// recordDirectorApproval funds the quote and closes every open sibling by exclusion.
func (l *Ledger) recordDirectorApproval(quoteID uuid.UUID, directorID string, at time.Time) error {
	q, err := l.Quote(quoteID)
	if err != nil {
		return err
	}
	if err := transition(q, workflow.TriggerDirectorApprove, at); err != nil {
		return err
	}
	q.DirectorApproved = true
	q.DirectorID = directorID

	for _, sibling := range l.Quotes {
		if sibling.ID == q.ID || !sibling.IsOpen() {
			continue
		}
		if err := transition(sibling, workflow.TriggerExclude, at); err != nil {
			return err
		}
	}
	return nil
}

func transition(q *Quote, trigger workflow.Trigger, at time.Time) error {
	machine, err := workflow.NewQuoteMachine(q.State)
	if err != nil {
		return fmt.Errorf("quote %s: %w", q.ID, err)
	}
	if err := machine.Fire(context.Background(), trigger); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) {
			return fmt.Errorf("%w: quote %s is %s", ErrQuoteClosed, q.ID, q.State)
		}
		return err
	}

	q.State = machine.State()
	decided := at
	q.DecidedAt = &decided
	return nil
}
