package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

const tokensTable = "auth.session_tokens"

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a PostgreSQL-backed token repository.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert persists a token record keyed by the hash of its value.
func (r *TokenRepository) Insert(ctx context.Context, token domain.SessionToken) error {
	stmt, args, err := r.builder.Insert(tokensTable).
		Columns("id", "value_hash", "account_id", "scope", "issued_at", "expires_at").
		Values(token.ID, token.ValueHash, token.AccountID, token.Scope, token.IssuedAt.UTC(), token.ExpiresAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// FindByValue returns the token record for valueHash, expired or not.
func (r *TokenRepository) FindByValue(ctx context.Context, valueHash string) (*domain.SessionToken, error) {
	stmt, args, err := r.builder.
		Select("id", "value_hash", "account_id", "scope", "issued_at", "expires_at").
		From(tokensTable).
		Where(squirrel.Eq{"value_hash": valueHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var token domain.SessionToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.ValueHash,
		&token.AccountID,
		&token.Scope,
		&token.IssuedAt,
		&token.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	token.IssuedAt = token.IssuedAt.UTC()
	token.ExpiresAt = token.ExpiresAt.UTC()
	return &token, nil
}

// DeleteByValue removes one token and reports whether this call removed it.
// A missing token is not an error.
func (r *TokenRepository) DeleteByValue(ctx context.Context, valueHash string) (bool, error) {
	removed, err := r.delete(ctx, "delete token", squirrel.Eq{"value_hash": valueHash})
	return removed > 0, err
}

// DeleteAllForAccount removes every token of accountID.
func (r *TokenRepository) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	return r.delete(ctx, "delete account tokens", squirrel.Eq{"account_id": accountID})
}

// DeleteOthersForAccount removes every token of accountID except keepValueHash.
func (r *TokenRepository) DeleteOthersForAccount(ctx context.Context, accountID string, keepValueHash string) (int64, error) {
	return r.delete(ctx, "delete other account tokens", squirrel.And{
		squirrel.Eq{"account_id": accountID},
		squirrel.NotEq{"value_hash": keepValueHash},
	})
}

// DeleteExpiredBefore removes tokens whose expiry is at or before cutoff.
func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.delete(ctx, "delete expired tokens", squirrel.LtOrEq{"expires_at": cutoff.UTC()})
}

func (r *TokenRepository) delete(ctx context.Context, op string, where squirrel.Sqlizer) (int64, error) {
	stmt, args, err := r.builder.Delete(tokensTable).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s sql: %w", op, err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
