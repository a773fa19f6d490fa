package domain

import (
	"fmt"
	"time"
)

// AuditEventKind enumerates authentication relevant facts.
type AuditEventKind string

const (
	AuditLoginSuccess AuditEventKind = "login_success"
	AuditLoginFailure AuditEventKind = "login_failure"
	AuditLogout       AuditEventKind = "logout"
	AuditTokenRefresh AuditEventKind = "token_refresh"
)

// Notes attached to successful events.
const (
	NoteRegistration = "registration"
	NoteLogout       = "logout"
	NoteLogoutAll    = "logout (all devices)"
)

// Failure reasons recorded on login_failure events.
const (
	FailureReasonNotFound        = "not found"
	FailureReasonLocked          = "account locked"
	FailureReasonInactive        = "inactive"
	FailureReasonInvalidPassword = "invalid password"
)

// FailureReasonLockedAfter describes the failure that tripped the lockout threshold.
func FailureReasonLockedAfter(attempts int) string {
	return fmt.Sprintf("locked after %d failed attempts", attempts)
}

// LoginAuditEvent is an append-only record of an authentication outcome.
type LoginAuditEvent struct {
	ID            string
	AccountID     *string
	Identifier    string
	Kind          AuditEventKind
	Success       bool
	FailureReason *string
	Note          string
	Origin        Origin
	OccurredAt    time.Time
}
