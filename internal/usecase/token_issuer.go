package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/security"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

// DefaultTokenTTL is used when no lifetime is configured.
const DefaultTokenTTL = 60 * time.Minute

const maxTokenInsertAttempts = 3

// TokenIssuer creates, validates and revokes opaque session tokens.
type TokenIssuer struct {
	tokens   port.TokenRepository
	accounts port.AccountRepository
	ttl      time.Duration
	generate func() (string, error)
	now      func() time.Time
	logger   *zap.Logger
}

// NewTokenIssuer constructs a TokenIssuer. A non-positive ttl falls back to DefaultTokenTTL.
func NewTokenIssuer(tokens port.TokenRepository, accounts port.AccountRepository, ttl time.Duration, log *zap.Logger) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenIssuer{
		tokens:   tokens,
		accounts: accounts,
		ttl:      ttl,
		generate: func() (string, error) { return security.GenerateSecureToken(security.SessionTokenBytes) },
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (i *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	if clock != nil {
		i.now = clock
	}
	return i
}

// TTL returns the configured default lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates and stores a token for account. ttl <= 0 uses the configured default.
func (i *TokenIssuer) Issue(ctx context.Context, account domain.Account, ttl time.Duration) (*domain.SessionToken, error) {
	if strings.TrimSpace(account.ID) == "" {
		return nil, fmt.Errorf("account id is required")
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	for attempt := 1; ; attempt++ {
		value, err := i.generate()
		if err != nil {
			return nil, fmt.Errorf("generate token value: %w", err)
		}

		now := i.now()
		token := domain.SessionToken{
			ID:        uuid.NewString(),
			Value:     value,
			ValueHash: security.HashToken(value),
			AccountID: account.ID,
			Scope:     domain.TokenScopeAll,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		}

		stored := token
		stored.Value = ""
		err = i.tokens.Insert(ctx, stored)
		if err == nil {
			return &token, nil
		}
		if errors.Is(err, repository.ErrDuplicate) && attempt < maxTokenInsertAttempts {
			i.logger.Warn("token value collision, regenerating", zap.String("account_id", account.ID))
			continue
		}
		return nil, storeUnavailable("insert token", err)
	}
}

// Validate resolves a presented token to its owning account.
// Expired records are reported but left in place.
func (i *TokenIssuer) Validate(ctx context.Context, value string) (*domain.Account, *domain.SessionToken, error) {
	token, err := i.lookup(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if !token.IsValidAt(i.now()) {
		return nil, token, ErrTokenExpired
	}

	account, err := i.accounts.GetByID(ctx, token.AccountID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrTokenNotFound
		}
		return nil, nil, storeUnavailable("load token owner", err)
	}
	return account, token, nil
}

func (i *TokenIssuer) lookup(ctx context.Context, value string) (*domain.SessionToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrTokenNotFound
	}

	token, err := i.tokens.FindByValue(ctx, security.HashToken(value))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, storeUnavailable("find token", err)
	}
	return token, nil
}

// Revoke deletes the token. Unknown or already revoked tokens are not an error.
func (i *TokenIssuer) Revoke(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := i.tokens.DeleteByValue(ctx, security.HashToken(value)); err != nil && !isNotFound(err) {
		return storeUnavailable("delete token", err)
	}
	return nil
}

// RevokeAll deletes every token owned by accountID and returns how many were removed.
func (i *TokenIssuer) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	removed, err := i.tokens.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return 0, storeUnavailable("delete account tokens", err)
	}
	return removed, nil
}

// RevokeOthers deletes every token of accountID except keepValue.
func (i *TokenIssuer) RevokeOthers(ctx context.Context, accountID, keepValue string) (int64, error) {
	keepValue = strings.TrimSpace(keepValue)
	if keepValue == "" {
		return i.RevokeAll(ctx, accountID)
	}
	removed, err := i.tokens.DeleteOthersForAccount(ctx, accountID, security.HashToken(keepValue))
	if err != nil {
		return 0, storeUnavailable("delete other account tokens", err)
	}
	return removed, nil
}

// Rotate revokes a currently valid token and issues a replacement with a fresh lifetime.
// Only the caller whose delete removed the old record gets a replacement.
func (i *TokenIssuer) Rotate(ctx context.Context, value string) (*domain.Account, *domain.SessionToken, error) {
	account, _, err := i.Validate(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	removed, err := i.tokens.DeleteByValue(ctx, security.HashToken(strings.TrimSpace(value)))
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrTokenNotFound
		}
		return nil, nil, storeUnavailable("delete token", err)
	}
	if !removed {
		return nil, nil, ErrTokenNotFound
	}
	issued, err := i.Issue(ctx, *account, i.ttl)
	if err != nil {
		return nil, nil, err
	}
	return account, issued, nil
}

// Sweep removes token records that expired before now.
func (i *TokenIssuer) Sweep(ctx context.Context) (int64, error) {
	removed, err := i.tokens.DeleteExpiredBefore(ctx, i.now())
	if err != nil {
		return 0, storeUnavailable("sweep expired tokens", err)
	}
	return removed, nil
}
