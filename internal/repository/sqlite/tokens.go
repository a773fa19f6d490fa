package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

// TokenRepository implements port.TokenRepository over SQLite.
// Token timestamps are stored in nanoseconds.
type TokenRepository struct {
	store *Store
}

// Insert persists a token record keyed by the hash of its value.
func (r *TokenRepository) Insert(ctx context.Context, token domain.SessionToken) error {
	_, err := r.store.sqlDB.ExecContext(ctx,
		`INSERT INTO session_tokens (id, value_hash, account_id, scope, issued_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID, token.ValueHash, token.AccountID, token.Scope, toNanos(token.IssuedAt), toNanos(token.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// FindByValue returns the token record for valueHash, expired or not.
func (r *TokenRepository) FindByValue(ctx context.Context, valueHash string) (*domain.SessionToken, error) {
	var (
		token     domain.SessionToken
		issuedAt  int64
		expiresAt int64
	)
	err := r.store.sqlDB.QueryRowContext(ctx,
		`SELECT id, value_hash, account_id, scope, issued_at, expires_at FROM session_tokens WHERE value_hash = ?`,
		valueHash,
	).Scan(&token.ID, &token.ValueHash, &token.AccountID, &token.Scope, &issuedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	token.IssuedAt = fromNanos(issuedAt)
	token.ExpiresAt = fromNanos(expiresAt)
	return &token, nil
}

// DeleteByValue removes one token and reports whether this call removed it.
// A missing token is not an error.
func (r *TokenRepository) DeleteByValue(ctx context.Context, valueHash string) (bool, error) {
	removed, err := r.delete(ctx, "delete token", `DELETE FROM session_tokens WHERE value_hash = ?`, valueHash)
	return removed > 0, err
}

// DeleteAllForAccount removes every token of accountID.
func (r *TokenRepository) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	return r.delete(ctx, "delete account tokens", `DELETE FROM session_tokens WHERE account_id = ?`, accountID)
}

// DeleteOthersForAccount removes every token of accountID except keepValueHash.
func (r *TokenRepository) DeleteOthersForAccount(ctx context.Context, accountID string, keepValueHash string) (int64, error) {
	return r.delete(ctx, "delete other account tokens",
		`DELETE FROM session_tokens WHERE account_id = ? AND value_hash <> ?`, accountID, keepValueHash)
}

// DeleteExpiredBefore removes tokens whose expiry is at or before cutoff.
func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.delete(ctx, "delete expired tokens", `DELETE FROM session_tokens WHERE expires_at <= ?`, toNanos(cutoff))
}

func (r *TokenRepository) delete(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.store.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
