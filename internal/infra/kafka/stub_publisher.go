package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Debug("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginAudit logs login audit records.
func (p *StubPublisher) PublishLoginAudit(_ context.Context, event domain.LoginAuditEvent) error {
	accountID := ""
	if event.AccountID != nil {
		accountID = *event.AccountID
	}
	p.logEvent(string(event.Kind), accountID, event.OccurredAt, loginAuditPayload(event))
	return nil
}

// PublishAccountRegistered logs auth.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"account_id":    event.AccountID,
		"email":         event.Email,
		"handle":        event.Handle,
		"role":          event.Role,
		"registered_at": event.RegisteredAt,
	}
	p.logEvent(EventAccountRegistered, event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishPasswordChanged logs auth.account.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"account_id":     event.AccountID,
		"changed_at":     event.ChangedAt,
		"tokens_revoked": event.TokensRevoked,
	}
	p.logEvent(EventPasswordChanged, event.AccountID, event.ChangedAt, payload)
	return nil
}

// PublishAccountStatusChanged logs auth.account.status.changed events.
func (p *StubPublisher) PublishAccountStatusChanged(_ context.Context, event domain.AccountStatusChangedEvent) error {
	payload := map[string]any{
		"account_id":     event.AccountID,
		"active":         event.Active,
		"changed_by":     event.ChangedBy,
		"changed_at":     event.ChangedAt,
		"tokens_revoked": event.TokensRevoked,
	}
	p.logEvent(EventAccountStatusChanged, event.AccountID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
