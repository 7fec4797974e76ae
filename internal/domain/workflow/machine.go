package workflow

import (
	"context"
	"fmt"
	"sort"
)

// Machine tracks the state of one quote against a Lifecycle
type Machine struct {
	lifecycle *Lifecycle
	state     State
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// CanFire reports whether trigger has any rule from the current state
func (m *Machine) CanFire(trigger Trigger) bool {
	return len(m.lifecycle.rules[m.state][trigger]) > 0
}

// Fire applies the first rule for trigger whose guard passes
func (m *Machine) Fire(ctx context.Context, trigger Trigger) error {
	rules := m.lifecycle.rules[m.state][trigger]
	if len(rules) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.state)
	}

	for _, r := range rules {
		if r.guard == nil || r.guard(ctx) {
			m.state = r.to
			return nil
		}
	}
	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.state)
}

// PermittedTriggers returns the triggers configured for the current state, sorted
func (m *Machine) PermittedTriggers() []Trigger {
	byTrigger := m.lifecycle.rules[m.state]
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger := range byTrigger {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// QuoteLifecycle: OPEN is the only state with outgoing transitions.
var QuoteLifecycle = newQuoteLifecycle()

func newQuoteLifecycle() *Lifecycle {
	b := NewBuilder()
	b.From(StateOpen).
		Permit(TriggerDirectorApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerExclude, StateRejected)
	return b.Seal()
}

// NewQuoteMachine returns a machine positioned at the given quote state
func NewQuoteMachine(current State) (*Machine, error) {
	return QuoteLifecycle.Machine(current)
}
