package workflow

// State represents the lifecycle state of a single supplier quote
type State string

const (
	StateOpen     State = "OPEN"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
)

var validStates = map[State]bool{
	StateOpen:     true,
	StateApproved: true,
	StateRejected: true,
}

// Both decided states are one-way: a quote never re-opens.
var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// IsTerminal returns true if the state allows no further transitions
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known quote state
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a stored value back into a State
func ParseState(v string) (State, error) {
	s := State(v)
	if !s.IsValid() {
		return "", ErrInvalidState
	}
	return s, nil
}
