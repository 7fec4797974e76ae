package requisition

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAllocation is returned when a department breakdown is malformed
	ErrInvalidAllocation = errors.New("invalid allocation")

	// ErrInvalidRequisition is returned when creation input is incomplete
	ErrInvalidRequisition = errors.New("invalid requisition")

	// ErrQuoteNotFound is returned when the quote does not belong to the requisition
	ErrQuoteNotFound = errors.New("quote not found")

	// ErrQuoteClosed is returned when a decision targets a quote that is no longer open
	ErrQuoteClosed = errors.New("quote closed")

	// ErrQuoteAlreadyChosen is returned when managers already started approving a sibling quote
	ErrQuoteAlreadyChosen = errors.New("another quote already chosen")

	// ErrConsensusNotReached is returned when director approval precedes unanimous manager approval
	ErrConsensusNotReached = errors.New("manager consensus not reached")
)

// ConsensusNotReachedError carries the counts needed for a precise user message.
type ConsensusNotReachedError struct {
	QuoteID  uuid.UUID
	Current  int
	Required int
}

func (e *ConsensusNotReachedError) Error() string {
	return fmt.Sprintf("%s: quote %s has %d of %d manager approvals", ErrConsensusNotReached, e.QuoteID, e.Current, e.Required)
}

// Is lets errors.Is match the sentinel.
func (e *ConsensusNotReachedError) Is(target error) bool {
	return target == ErrConsensusNotReached
}

// QuoteAlreadyChosenError names the quote the managers are already approving.
type QuoteAlreadyChosenError struct {
	Requested uuid.UUID
	Chosen    uuid.UUID
}

func (e *QuoteAlreadyChosenError) Error() string {
	return fmt.Sprintf("%s: quote %s already has manager approvals, %s cannot be approved", ErrQuoteAlreadyChosen, e.Chosen, e.Requested)
}

// Is lets errors.Is match the sentinel.
func (e *QuoteAlreadyChosenError) Is(target error) bool {
	return target == ErrQuoteAlreadyChosen
}
