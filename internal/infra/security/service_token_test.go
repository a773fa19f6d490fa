package security

import (
	"errors"
	"testing"
	"time"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	manager := NewServiceTokenManager(ServiceTokenConfig{Secret: "s3cret", Issuer: "pos-auth", Audience: "pos-internal"}).
		WithClock(func() time.Time { return now })

	raw, err := manager.Issue("inventory", time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := manager.Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Service != "inventory" {
		t.Fatalf("expected service inventory, got %s", claims.Service)
	}
}

func TestServiceTokenExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	manager := NewServiceTokenManager(ServiceTokenConfig{Secret: "s3cret"}).
		WithClock(func() time.Time { return now })

	raw, err := manager.Issue("inventory", time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := manager.Parse(raw); !errors.Is(err, ErrServiceTokenExpired) {
		t.Fatalf("expected ErrServiceTokenExpired, got %v", err)
	}
}

func TestServiceTokenWrongSecretOrAudience(t *testing.T) {
	issuer := NewServiceTokenManager(ServiceTokenConfig{Secret: "one", Audience: "pos-internal"})
	raw, err := issuer.Issue("reports", time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	other := NewServiceTokenManager(ServiceTokenConfig{Secret: "two", Audience: "pos-internal"})
	if _, err := other.Parse(raw); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("expected ErrServiceTokenInvalid for wrong secret, got %v", err)
	}

	wrongAudience := NewServiceTokenManager(ServiceTokenConfig{Secret: "one", Audience: "elsewhere"})
	if _, err := wrongAudience.Parse(raw); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("expected ErrServiceTokenInvalid for wrong audience, got %v", err)
	}
}

func TestNewServiceTokenManagerDisabledWithoutSecret(t *testing.T) {
	if manager := NewServiceTokenManager(ServiceTokenConfig{}); manager != nil {
		t.Fatal("expected nil manager without secret")
	}
}
