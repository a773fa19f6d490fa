package port

import (
	"context"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
)

// AuditSink records authentication events without ever failing the caller.
type AuditSink interface {
	Record(ctx context.Context, event domain.LoginAuditEvent)
}

// AuditEventStore appends audit events to durable storage.
type AuditEventStore interface {
	Append(ctx context.Context, event domain.LoginAuditEvent) error
}
