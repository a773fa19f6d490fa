package port

import (
	"context"
	"time"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
)

// AccountRepository persists accounts and their lockout state.
type AccountRepository interface {
	FindByLoginIdentifier(ctx context.Context, field domain.LoginIdentifierField, value string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	Create(ctx context.Context, account domain.Account) error
	// UpdateLockState writes the failure counter and lock expiry only when the stored
	// version still equals expectedVersion, bumping the version on success.
	UpdateLockState(ctx context.Context, id string, expectedVersion int64, failedAttempts int, lockedUntil *time.Time) error
	// UpdateLastLogin is conditioned on expectedVersion like UpdateLockState.
	UpdateLastLogin(ctx context.Context, id string, expectedVersion int64, at time.Time, origin domain.Origin) error
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	SetActive(ctx context.Context, id string, active bool) error
	Ping(ctx context.Context) error
}
