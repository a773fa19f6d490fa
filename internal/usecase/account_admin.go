package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

// AccountAdminService toggles account activation and clears lockouts.
type AccountAdminService struct {
	accounts port.AccountRepository
	tokens   *TokenIssuer
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
	retries  int
}

// NewAccountAdminService constructs an AccountAdminService.
func NewAccountAdminService(accounts port.AccountRepository, tokens *TokenIssuer, events port.EventPublisher, logger *zap.Logger) *AccountAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountAdminService{
		accounts: accounts,
		tokens:   tokens,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		retries:  defaultMaxCASRetries,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AccountAdminService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// SetActive toggles the active flag. Deactivation revokes every token of the account.
func (s *AccountAdminService) SetActive(ctx context.Context, accountID string, active bool, actor string) (int64, error) {
	accountID = strings.TrimSpace(accountID)
	if err := s.accounts.SetActive(ctx, accountID, active); err != nil {
		if isNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, storeUnavailable("set account active", err)
	}

	var revoked int64
	if !active {
		var err error
		revoked, err = s.tokens.RevokeAll(ctx, accountID)
		if err != nil {
			return 0, err
		}
	}

	s.logger.Info("account status changed",
		zap.String("account_id", accountID),
		zap.Bool("active", active),
		zap.String("actor", actor),
		zap.Int64("tokens_revoked", revoked),
	)

	if s.events != nil {
		event := domain.AccountStatusChangedEvent{
			EventID:       uuid.NewString(),
			AccountID:     accountID,
			Active:        active,
			ChangedBy:     actor,
			ChangedAt:     s.now(),
			TokensRevoked: revoked,
		}
		if err := s.events.PublishAccountStatusChanged(ctx, event); err != nil {
			s.logger.Warn("publish account status change failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}

	return revoked, nil
}

// Unlock clears the failure counter and any lock.
func (s *AccountAdminService) Unlock(ctx context.Context, accountID string) error {
	for attempt := 0; ; attempt++ {
		account, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return storeUnavailable("load account", err)
		}
		if account.FailedAttempts == 0 && account.LockedUntil == nil {
			return nil
		}

		err = s.accounts.UpdateLockState(ctx, account.ID, account.Version, 0, nil)
		switch {
		case err == nil:
			s.logger.Info("account unlocked", zap.String("account_id", account.ID))
			return nil
		case errors.Is(err, repository.ErrVersionConflict) && attempt < s.retries:
			continue
		case isNotFound(err):
			return ErrNotFound
		default:
			return storeUnavailable("unlock account", err)
		}
	}
}
