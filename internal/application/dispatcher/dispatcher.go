// Package dispatcher delivers committed requisition events to in-process
// subscribers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/procure-approval/internal/domain/event"
)

// ErrClosed is returned when publishing to a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher fans committed requisition events out to subscribers
type Dispatcher interface {
	// Subscribe registers a named handler for one event type, or AllEvents
	Subscribe(eventType event.Type, name string, handler Handler)

	// Publish runs every matching handler synchronously. A failing or
	// panicking handler does not stop the others; failures are joined.
	Publish(ctx context.Context, events ...*event.Event) error

	// Handlers lists subscriptions matching an event type, typed first
	Handlers(eventType event.Type) []HandlerInfo

	// Close rejects further publishing
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// table is replaced wholesale on Subscribe, so Publish reads a snapshot
// without taking the write lock.
type table map[event.Type][]HandlerInfo

type eventDispatcher struct {
	writeMu sync.Mutex
	table   atomic.Pointer[table]
	closed  atomic.Bool
	logger  Logger
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher with no subscribers
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{}
	d.table.Store(&table{})
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	current := *d.table.Load()
	if name == "" {
		name = fmt.Sprintf("%s#%d", eventType, len(current[eventType]))
	}

	next := make(table, len(current)+1)
	for t, hs := range current {
		next[t] = hs
	}
	next[eventType] = append(append([]HandlerInfo(nil), current[eventType]...), HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.table.Store(&next)

	d.log(false, "Handler subscribed", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Publish(ctx context.Context, events ...*event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	snapshot := *d.table.Load()
	var errs []error
	for _, evt := range events {
		for _, h := range snapshot.matching(evt.Type) {
			err := invoke(ctx, h, evt)
			if err == nil {
				continue
			}
			d.log(true, "Event handler failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"requisition_id", evt.RequisitionID,
				"handler_name", h.Name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) Handlers(eventType event.Type) []HandlerInfo {
	return d.table.Load().matching(eventType)
}

func (d *eventDispatcher) Close() error {
	if d.closed.Swap(true) {
		return errors.New("dispatcher already closed")
	}
	d.log(false, "Dispatcher closed")
	return nil
}

func (t table) matching(eventType event.Type) []HandlerInfo {
	out := make([]HandlerInfo, 0, len(t[eventType])+len(t[AllEvents]))
	out = append(out, t[eventType]...)
	if eventType != AllEvents {
		out = append(out, t[AllEvents]...)
	}
	return out
}

func invoke(ctx context.Context, h HandlerInfo, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handler(ctx, evt)
}

func (d *eventDispatcher) log(isError bool, msg string, kv ...interface{}) {
	switch {
	case d.logger == nil:
	case isError:
		d.logger.Error(msg, kv...)
	default:
		d.logger.Info(msg, kv...)
	}
}
