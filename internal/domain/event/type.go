package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequisitionCreated  Type = "requisition.created"
	TypeRequisitionApproved Type = "requisition.approved"
	TypeRequisitionRejected Type = "requisition.rejected"
	TypeManagerApproved     Type = "quote.manager_approved"
	TypeQuoteRejected       Type = "quote.rejected"
	TypeQuoteFunded         Type = "quote.funded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequisitionCreated,
		TypeRequisitionApproved,
		TypeRequisitionRejected,
		TypeManagerApproved,
		TypeQuoteRejected,
		TypeQuoteFunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether the event marks a requisition leaving PENDING
func (t Type) Terminal() bool {
	return t == TypeRequisitionApproved || t == TypeRequisitionRejected
}
