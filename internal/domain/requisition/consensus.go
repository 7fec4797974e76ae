package requisition

import "github.com/google/uuid"

// HasConsensus reports whether every assigned manager approved the quote.
// This is a strict AND gate, not a quorum: one missing manager blocks the director.
// A requisition without managers (single-approver variants) is vacuously in consensus.
func HasConsensus(req *Requisition, quoteID uuid.UUID) bool {
	current, required, err := ConsensusCount(req, quoteID)
	if err != nil {
		return false
	}
	return current == required
}

// ConsensusCount returns how many assigned managers approved the quote and how many are required
func ConsensusCount(req *Requisition, quoteID uuid.UUID) (current, required int, err error) {
	q, err := req.Quote(quoteID)
	if err != nil {
		return 0, 0, err
	}

	for _, m := range req.Managers {
		if q.HasManagerApproval(m) {
			current++
		}
	}
	return current, len(req.Managers), nil
}

// OutstandingManagers lists assigned managers who have not yet approved the quote
func OutstandingManagers(req *Requisition, quoteID uuid.UUID) ([]string, error) {
	q, err := req.Quote(quoteID)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, m := range req.Managers {
		if !q.HasManagerApproval(m) {
			out = append(out, m)
		}
	}
	return out, nil
}
