package domain

import "time"

// TokenScopeAll grants every capability of the owning account.
const TokenScopeAll = "all"

// SessionToken is an opaque bearer credential issued to an authenticated account.
// Value is only populated when the token is handed back to the caller; stores keep ValueHash.
type SessionToken struct {
	ID        string
	Value     string
	ValueHash string
	AccountID string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsValidAt reports whether the token is inside its lifetime at the supplied moment.
func (t SessionToken) IsValidAt(at time.Time) bool {
	return at.Before(t.ExpiresAt)
}

// TTL returns the lifetime the token was issued with.
func (t SessionToken) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}
