package sqlite

import (
	"context"
	"fmt"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
)

// AuditEventRepository appends login audit events to SQLite.
type AuditEventRepository struct {
	store *Store
}

// Append inserts one audit event.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.LoginAuditEvent) error {
	_, err := r.store.sqlDB.ExecContext(ctx, `
INSERT INTO login_audit_events (
    id, account_id, identifier, kind, success, failure_reason, note,
    ip, user_agent, device, browser, platform, occurred_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		nullableString(event.AccountID),
		event.Identifier,
		string(event.Kind),
		event.Success,
		nullableString(event.FailureReason),
		event.Note,
		event.Origin.IP,
		event.Origin.UserAgent,
		event.Origin.Device.Device,
		event.Origin.Device.Browser,
		event.Origin.Device.Platform,
		toMillis(event.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

var _ port.AuditEventStore = (*AuditEventRepository)(nil)
