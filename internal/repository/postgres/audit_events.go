package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
)

// AuditEventRepository appends login audit events to auth.login_audit_events.
type AuditEventRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditEventRepository constructs a PostgreSQL-backed audit store.
func NewAuditEventRepository(exec pgExecutor) *AuditEventRepository {
	return &AuditEventRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one audit event. Events are never updated.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.LoginAuditEvent) error {
	stmt, args, err := r.builder.Insert("auth.login_audit_events").
		Columns(
			"id",
			"account_id",
			"identifier",
			"kind",
			"success",
			"failure_reason",
			"note",
			"ip",
			"user_agent",
			"device",
			"browser",
			"platform",
			"occurred_at",
		).
		Values(
			event.ID,
			optionalString(event.AccountID),
			event.Identifier,
			string(event.Kind),
			event.Success,
			optionalString(event.FailureReason),
			event.Note,
			event.Origin.IP,
			event.Origin.UserAgent,
			event.Origin.Device.Device,
			event.Origin.Device.Browser,
			event.Origin.Device.Platform,
			event.OccurredAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

var _ port.AuditEventStore = (*AuditEventRepository)(nil)
