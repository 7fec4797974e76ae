package port

import (
	"context"
	"errors"
	"io"

	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/event"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// ErrUnauthenticated is returned when a session token cannot be resolved
var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityResolver maps a session token to the acting user.
// The approval rules never see tokens, only the resolved identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (authz.Identity, error)
}

// EventPublisher delivers committed requisition events to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, events ...*event.Event) error
}

// ReportExporter renders a requisition for download
type ReportExporter interface {
	ContentType() string
	FileExtension() string
	Export(w io.Writer, req *requisition.Requisition) error
}
