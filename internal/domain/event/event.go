package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact about a requisition, published after the change is committed
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequisitionID uuid.UUID              `json:"requisition_id"`
	QuoteID       uuid.UUID              `json:"quote_id,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with generated ID and timestamp
func NewEvent(eventType Type, requisitionID uuid.UUID, actorID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		RequisitionID: requisitionID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event that belongs to an existing chain,
// e.g. the quote and requisition events produced by one decision.
func NewEventWithCorrelation(eventType Type, requisitionID uuid.UUID, actorID string, payload map[string]interface{}, correlationID string) *Event {
	evt := NewEvent(eventType, requisitionID, actorID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// ForQuote returns a copy of the event bound to a quote
func (e *Event) ForQuote(quoteID uuid.UUID) *Event {
	cp := e.clone()
	cp.QuoteID = quoteID
	return cp
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	cp := e.clone()
	cp.Payload[key] = value
	return cp
}

func (e *Event) clone() *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
