package domain

import (
	"strings"
	"time"
)

// LoginIdentifierField names the account attribute a login identifier is matched against.
type LoginIdentifierField string

const (
	LoginFieldEmail  LoginIdentifierField = "email"
	LoginFieldHandle LoginIdentifierField = "handle"
)

// Account represents an identity that can authenticate against the gateway.
type Account struct {
	ID              string
	Email           string
	Handle          string
	DisplayName     string
	Role            string
	PasswordHash    string
	Active          bool
	FailedAttempts  int
	LockedUntil     *time.Time
	LastLoginAt     *time.Time
	LastLoginIP     *string
	LastLoginDevice *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsLocked reports whether a lock is in force at the supplied moment.
func (a Account) IsLocked(at time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(at)
}

// LockLapsed reports whether the account carries a lock that has already expired.
func (a Account) LockLapsed(at time.Time) bool {
	return a.LockedUntil != nil && !a.LockedUntil.After(at)
}

// AccountProfile carries the caller supplied attributes of a new account.
type AccountProfile struct {
	Email       string
	Handle      string
	DisplayName string
	Role        string
}

// Normalize trims the profile and lower-cases the email address.
func (p AccountProfile) Normalize() AccountProfile {
	return AccountProfile{
		Email:       strings.ToLower(strings.TrimSpace(p.Email)),
		Handle:      strings.TrimSpace(p.Handle),
		DisplayName: strings.TrimSpace(p.DisplayName),
		Role:        strings.TrimSpace(p.Role),
	}
}

// DeviceInfo is the best-effort classification of a user agent.
type DeviceInfo struct {
	Device   string
	Browser  string
	Platform string
}

// Descriptor renders the device information as a single opaque string.
func (d DeviceInfo) Descriptor() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{d.Device, d.Browser, d.Platform} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " / ")
}

// Origin describes where an authentication request came from.
type Origin struct {
	IP        string
	UserAgent string
	Device    DeviceInfo
}
