package workflow

import (
	"context"
	"fmt"
)

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

type rule struct {
	to    State
	guard GuardFunc
}

type ruleTable map[State]map[Trigger][]rule

// Builder collects transition rules. Configuration mistakes are programming
// errors and panic; Seal turns the rules into an immutable Lifecycle.
type Builder struct {
	rules ruleTable
}

// StateRules adds transitions leaving one state
type StateRules struct {
	from  State
	rules map[Trigger][]rule
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{rules: make(ruleTable)}
}

// From returns the rules leaving state, creating them on first use
func (b *Builder) From(state State) *StateRules {
	if !state.IsValid() {
		panic(fmt.Sprintf("workflow: invalid source state %q", state))
	}
	if b.rules[state] == nil {
		b.rules[state] = make(map[Trigger][]rule)
	}
	return &StateRules{from: state, rules: b.rules[state]}
}

// Permit allows trigger to move the machine to state to
func (r *StateRules) Permit(trigger Trigger, to State) *StateRules {
	return r.PermitIf(trigger, to, nil)
}

// PermitIf allows trigger to move the machine to state to when guard passes.
// Rules for the same trigger are tried in registration order.
func (r *StateRules) PermitIf(trigger Trigger, to State, guard GuardFunc) *StateRules {
	if !to.IsValid() {
		panic(fmt.Sprintf("workflow: invalid target state %q from %s", to, r.from))
	}
	r.rules[trigger] = append(r.rules[trigger], rule{to: to, guard: guard})
	return r
}

// Seal snapshots the rules. Later changes to the builder do not affect it.
func (b *Builder) Seal() *Lifecycle {
	snapshot := make(ruleTable, len(b.rules))
	for state, byTrigger := range b.rules {
		cp := make(map[Trigger][]rule, len(byTrigger))
		for trigger, rules := range byTrigger {
			cp[trigger] = append([]rule(nil), rules...)
		}
		snapshot[state] = cp
	}
	return &Lifecycle{rules: snapshot}
}

// Lifecycle is an immutable transition table shared by every machine built from it
type Lifecycle struct {
	rules ruleTable
}

// Machine returns a machine positioned at current
func (l *Lifecycle) Machine(current State) (*Machine, error) {
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, current)
	}
	return &Machine{lifecycle: l, state: current}, nil
}
