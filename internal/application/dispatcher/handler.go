package dispatcher

import (
	"context"

	"github.com/garyjia/procure-approval/internal/domain/event"
)

// Handler reacts to one committed event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo is one subscription
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// AllEvents subscribes a handler to every event type
const AllEvents event.Type = "*"
