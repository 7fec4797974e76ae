package workflow

// Trigger represents an event that can move a quote out of OPEN
type Trigger string

const (
	// TriggerDirectorApprove funds the quote.
	TriggerDirectorApprove Trigger = "DIRECTOR_APPROVE"
	// TriggerReject is an explicit rejection by an empowered actor.
	TriggerReject Trigger = "REJECT"
	// TriggerExclude closes a sibling after another quote was funded.
	TriggerExclude Trigger = "EXCLUDE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
