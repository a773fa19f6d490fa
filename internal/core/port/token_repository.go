package port

import (
	"context"
	"time"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
)

// TokenRepository stores session tokens keyed by the hash of their value.
type TokenRepository interface {
	Insert(ctx context.Context, token domain.SessionToken) error
	FindByValue(ctx context.Context, valueHash string) (*domain.SessionToken, error)
	DeleteByValue(ctx context.Context, valueHash string) (bool, error)
	DeleteAllForAccount(ctx context.Context, accountID string) (int64, error)
	DeleteOthersForAccount(ctx context.Context, accountID string, keepValueHash string) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
