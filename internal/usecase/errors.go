package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/arklim/pos-auth-gateway/internal/repository"
)

var (
	// ErrNotFound indicates no account matches the login identifier.
	ErrNotFound = errors.New("account not found")
	// ErrAccountLocked indicates the account is inside a lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive indicates the account has been deactivated.
	ErrAccountInactive = errors.New("account inactive")
	// ErrBadPassword indicates the supplied password does not match.
	ErrBadPassword = errors.New("bad password")
	// ErrTokenExpired indicates the bearer token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotFound indicates the bearer token is unknown or revoked.
	ErrTokenNotFound = errors.New("token not found")
	// ErrStoreUnavailable indicates the account or token store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrIdentifierTaken indicates the email or handle already belongs to an account.
	ErrIdentifierTaken = errors.New("login identifier already registered")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrInvalidProfile indicates required registration attributes are missing or malformed.
	ErrInvalidProfile = errors.New("invalid account profile")
)

// InvalidCredentialsMessage is the only message callers see for unknown accounts and bad passwords.
const InvalidCredentialsMessage = "invalid login credentials"

// LockedError reports a lockout together with its expiry.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Unwrap allows errors.Is(err, ErrAccountLocked).
func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// LockedUntil extracts the lock expiry from err when it is a lockout.
func LockedUntil(err error) (time.Time, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.Until, true
	}
	return time.Time{}, false
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
