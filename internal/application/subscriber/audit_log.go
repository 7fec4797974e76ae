// Package subscriber holds dispatcher handlers that react to committed
// requisition events.
package subscriber

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/application/dispatcher"
	"github.com/garyjia/procure-approval/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// AuditLog writes one structured log line per committed event.
type AuditLog struct {
	logger Logger
}

// NewAuditLog creates the audit log subscriber
func NewAuditLog(logger Logger) *AuditLog {
	return &AuditLog{logger: logger}
}

// Handle matches dispatcher.Handler
func (a *AuditLog) Handle(_ context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}

	kv := []interface{}{
		"event_id", evt.ID,
		"type", evt.Type.String(),
		"requisition_id", evt.RequisitionID,
		"actor_id", evt.ActorID,
		"correlation_id", evt.CorrelationID,
	}
	if evt.QuoteID != uuid.Nil {
		kv = append(kv, "quote_id", evt.QuoteID)
	}
	if behalf := evt.GetPayloadString("on_behalf_of"); behalf != "" {
		kv = append(kv, "on_behalf_of", behalf)
	}

	if evt.Type.Terminal() {
		a.logger.Info("Requisition decided", kv...)
		return nil
	}
	a.logger.Info("Requisition event", kv...)
	return nil
}

// Registration pairs a handler with the event type it listens to
type Registration struct {
	EventType event.Type
	Name      string
	Handler   dispatcher.Handler
}

// Register subscribes every registration on d
func Register(d dispatcher.Dispatcher, regs ...Registration) {
	for _, r := range regs {
		d.Subscribe(r.EventType, r.Name, r.Handler)
	}
}
