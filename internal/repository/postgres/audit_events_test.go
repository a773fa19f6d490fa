package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
)

func TestAuditEventRepository_Append(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAuditEventRepository(mock)

	occurredAt := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	reason := domain.FailureReasonNotFound
	event := domain.LoginAuditEvent{
		ID:            "audit-1",
		Identifier:    "ghost",
		Kind:          domain.AuditLoginFailure,
		FailureReason: &reason,
		Origin: domain.Origin{
			IP:        "10.1.1.1",
			UserAgent: "curl/8.0",
			Device:    domain.DeviceInfo{Device: "Unknown"},
		},
		OccurredAt: occurredAt,
	}

	mock.ExpectExec(`INSERT INTO auth\.login_audit_events`).
		WithArgs(
			"audit-1", nil, "ghost", "login_failure", false, "not found", "",
			"10.1.1.1", "curl/8.0", "Unknown", "", "", occurredAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Append(context.Background(), event); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestMigrateAppliesEmbeddedSchema(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS auth`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	expectationsMet(t, mock)
}
