package service

import (
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/event"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// outcomeEvents turns a committed decision into domain events sharing one correlation id
func outcomeEvents(req *requisition.Requisition, out *approval.Outcome) []*event.Event {
	if !out.Changed() {
		return nil
	}

	var events []*event.Event
	correlation := ""
	add := func(t event.Type, actorID string, payload map[string]interface{}) {
		var evt *event.Event
		if correlation == "" {
			evt = event.NewEvent(t, req.ID, actorID, payload)
			correlation = evt.CorrelationID
		} else {
			evt = event.NewEventWithCorrelation(t, req.ID, actorID, payload, correlation)
		}
		events = append(events, evt.ForQuote(out.QuoteID))
	}

	for _, rec := range out.Records {
		payload := map[string]interface{}{
			"seat":   string(rec.ActorRole),
			"master": rec.Master,
		}
		if rec.OnBehalfOf != "" {
			payload["on_behalf_of"] = rec.OnBehalfOf
		}

		switch {
		case rec.Decision == requisition.DecisionReject:
			add(event.TypeQuoteRejected, rec.ActorID, payload)
		case rec.ActorRole == requisition.ActingManager:
			if current, required, err := requisition.ConsensusCount(req, rec.QuoteID); err == nil {
				payload["current"] = current
				payload["required"] = required
			}
			add(event.TypeManagerApproved, rec.ActorID, payload)
		default:
			add(event.TypeQuoteFunded, rec.ActorID, payload)
		}
	}

	if out.StatusChanged() {
		payload := map[string]interface{}{"kind": string(req.Kind)}
		switch out.Status {
		case requisition.StatusApproved:
			add(event.TypeRequisitionApproved, req.DecidedBy, payload)
		case requisition.StatusRejected:
			add(event.TypeRequisitionRejected, req.DecidedBy, payload)
		}
	}
	return events
}
