package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types carried in the envelope.
const (
	EventAccountRegistered    = "auth.account.registered"
	EventPasswordChanged      = "auth.account.password.changed"
	EventAccountStatusChanged = "auth.account.status.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer   *Producer
	logger     *zap.Logger
	appCfg     config.AppSettings
	auditTopic string
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, kafkaCfg config.KafkaSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		producer:   producer,
		appCfg:     appCfg,
		auditTopic: kafkaCfg.AuditTopic,
		logger:     logger,
	}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if accountID != "" {
		message.Key = sarama.StringEncoder(accountID)
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func loginAuditPayload(event domain.LoginAuditEvent) map[string]any {
	payload := map[string]any{
		"audit_id":    event.ID,
		"kind":        string(event.Kind),
		"identifier":  event.Identifier,
		"success":     event.Success,
		"ip_address":  event.Origin.IP,
		"user_agent":  event.Origin.UserAgent,
		"device":      event.Origin.Device.Descriptor(),
		"occurred_at": event.OccurredAt.UTC(),
	}
	if event.AccountID != nil {
		payload["account_id"] = *event.AccountID
	}
	if event.FailureReason != nil {
		payload["failure_reason"] = *event.FailureReason
	}
	if event.Note != "" {
		payload["note"] = event.Note
	}
	return payload
}

// PublishLoginAudit publishes a login audit record to the configured audit topic.
func (p *EventPublisher) PublishLoginAudit(ctx context.Context, event domain.LoginAuditEvent) error {
	accountID := ""
	if event.AccountID != nil {
		accountID = *event.AccountID
	}
	return p.publish(ctx, event.ID, p.auditTopic, accountID, event.OccurredAt, loginAuditPayload(event))
}

// PublishAccountRegistered publishes auth.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string         `json:"account_id"`
		Email        string         `json:"email"`
		Handle       string         `json:"handle"`
		Role         string         `json:"role"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:    event.AccountID,
		Email:        event.Email,
		Handle:       event.Handle,
		Role:         event.Role,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventAccountRegistered, event.AccountID, event.RegisteredAt, payload)
}

// PublishPasswordChanged publishes auth.account.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID     string         `json:"account_id"`
		ChangedAt     time.Time      `json:"changed_at"`
		TokensRevoked int64          `json:"tokens_revoked"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:     event.AccountID,
		ChangedAt:     event.ChangedAt.UTC(),
		TokensRevoked: event.TokensRevoked,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.AccountID, event.ChangedAt, payload)
}

// PublishAccountStatusChanged publishes auth.account.status.changed events.
func (p *EventPublisher) PublishAccountStatusChanged(ctx context.Context, event domain.AccountStatusChangedEvent) error {
	payload := struct {
		AccountID     string         `json:"account_id"`
		Active        bool           `json:"active"`
		ChangedBy     string         `json:"changed_by"`
		ChangedAt     time.Time      `json:"changed_at"`
		TokensRevoked int64          `json:"tokens_revoked"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:     event.AccountID,
		Active:        event.Active,
		ChangedBy:     event.ChangedBy,
		ChangedAt:     event.ChangedAt.UTC(),
		TokensRevoked: event.TokensRevoked,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventAccountStatusChanged, event.AccountID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
