package domain

import "time"

// AccountRegisteredEvent represents the payload for auth.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Email        string
	Handle       string
	Role         string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// PasswordChangedEvent represents the payload for auth.account.password.changed messages.
type PasswordChangedEvent struct {
	EventID       string
	AccountID     string
	ChangedAt     time.Time
	TokensRevoked int64
	Metadata      map[string]any
}

// AccountStatusChangedEvent represents the payload for auth.account.status.changed messages.
type AccountStatusChangedEvent struct {
	EventID       string
	AccountID     string
	Active        bool
	ChangedBy     string
	ChangedAt     time.Time
	TokensRevoked int64
	Metadata      map[string]any
}
