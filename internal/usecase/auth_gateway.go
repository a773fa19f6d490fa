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
	"github.com/arklim/pos-auth-gateway/internal/infra/logger"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

const (
	defaultMaxCASRetries = 8
	defaultAccountRole   = "staff"
)

// AuthGatewayConfig tunes the gateway.
type AuthGatewayConfig struct {
	TokenTTL                       time.Duration
	MaxCASRetries                  int
	RevokeSessionsOnPasswordChange bool
	AuditRefresh                   bool
}

// LoginResult is returned by every operation that issues a token.
type LoginResult struct {
	Account domain.Account
	Token   domain.SessionToken
}

// AuthObserver receives outcome notifications for metrics.
type AuthObserver interface {
	ObserveLogin(outcome string)
	ObserveLockout()
	ObserveTokenIssued(reason string)
	ObserveTokensRevoked(reason string, count int64)
}

type noopObserver struct{}

func (noopObserver) ObserveLogin(string)                {}
func (noopObserver) ObserveLockout()                    {}
func (noopObserver) ObserveTokenIssued(string)          {}
func (noopObserver) ObserveTokensRevoked(string, int64) {}

// AuthGateway orchestrates login, registration, logout, refresh and password change.
type AuthGateway struct {
	accounts  port.AccountRepository
	verifier  *CredentialVerifier
	policy    LockoutPolicy
	tokens    *TokenIssuer
	hasher    port.PasswordHasher
	passwords port.PasswordPolicyValidator
	audit     port.AuditSink
	events    port.EventPublisher
	observer  AuthObserver
	cfg       AuthGatewayConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewAuthGateway wires the gateway from its collaborators.
func NewAuthGateway(
	accounts port.AccountRepository,
	verifier *CredentialVerifier,
	policy LockoutPolicy,
	tokens *TokenIssuer,
	hasher port.PasswordHasher,
	audit port.AuditSink,
	cfg AuthGatewayConfig,
	log *zap.Logger,
) *AuthGateway {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxCASRetries <= 0 {
		cfg.MaxCASRetries = defaultMaxCASRetries
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = tokens.TTL()
	}
	return &AuthGateway{
		accounts: accounts,
		verifier: verifier,
		policy:   policy,
		tokens:   tokens,
		hasher:   hasher,
		audit:    audit,
		observer: noopObserver{},
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log,
	}
}

// WithClock overrides the clock of the gateway and its token issuer.
func (g *AuthGateway) WithClock(clock func() time.Time) *AuthGateway {
	if clock != nil {
		g.now = clock
		g.tokens.WithClock(clock)
	}
	return g
}

// WithPasswordPolicy installs the policy applied to new passwords.
func (g *AuthGateway) WithPasswordPolicy(policy port.PasswordPolicyValidator) *AuthGateway {
	g.passwords = policy
	return g
}

// WithEventPublisher publishes account lifecycle events.
func (g *AuthGateway) WithEventPublisher(events port.EventPublisher) *AuthGateway {
	g.events = events
	return g
}

// WithObserver installs a metrics observer.
func (g *AuthGateway) WithObserver(observer AuthObserver) *AuthGateway {
	if observer != nil {
		g.observer = observer
	}
	return g
}

// Login authenticates identifier/password and issues a token.
// Order: lookup, lock check, active check, password check.
func (g *AuthGateway) Login(ctx context.Context, identifier, password string, origin domain.Origin) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	log := logger.WithContext(ctx, g.logger).With(zap.String("identifier", logger.MaskIdentifier(identifier)))

	account, err := g.verifier.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.recordFailure(ctx, nil, identifier, domain.FailureReasonNotFound, origin)
			g.observer.ObserveLogin("not_found")
			return nil, ErrNotFound
		}
		log.Error("login lookup failed", zap.Error(err))
		g.observer.ObserveLogin("store_unavailable")
		return nil, err
	}

	check := passwordCheck{}
	for attempt := 0; ; attempt++ {
		result, err := g.attemptLogin(ctx, account, identifier, password, origin, &check)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return result, err
		}
		if attempt >= g.cfg.MaxCASRetries {
			log.Error("login abandoned after repeated lock state conflicts", zap.Int("attempts", attempt+1))
			g.observer.ObserveLogin("store_unavailable")
			return nil, storeUnavailable("update lock state", err)
		}

		account, err = g.accounts.GetByID(ctx, account.ID)
		if err != nil {
			if isNotFound(err) {
				g.observer.ObserveLogin("not_found")
				return nil, ErrNotFound
			}
			g.observer.ObserveLogin("store_unavailable")
			return nil, storeUnavailable("reload account", err)
		}
	}
}

// passwordCheck memoises the verification result for a given stored hash across CAS retries.
type passwordCheck struct {
	hash string
	err  error
	done bool
}

func (g *AuthGateway) verifyOnce(account domain.Account, password string, check *passwordCheck) error {
	if check.done && check.hash == account.PasswordHash {
		return check.err
	}
	check.hash = account.PasswordHash
	check.err = g.verifier.Verify(account, password)
	check.done = true
	return check.err
}

// attemptLogin evaluates one snapshot. It returns repository.ErrVersionConflict when
// the snapshot went stale and the caller must reload.
func (g *AuthGateway) attemptLogin(ctx context.Context, account *domain.Account, identifier, password string, origin domain.Origin, check *passwordCheck) (*LoginResult, error) {
	now := g.now()
	accountID := account.ID

	if g.policy.IsLockedOut(*account, now) {
		g.recordFailure(ctx, &accountID, identifier, domain.FailureReasonLocked, origin)
		g.observer.ObserveLogin("locked")
		return nil, &LockedError{Until: *account.LockedUntil}
	}

	if !account.Active {
		g.recordFailure(ctx, &accountID, identifier, domain.FailureReasonInactive, origin)
		g.observer.ObserveLogin("inactive")
		return nil, ErrAccountInactive
	}

	if err := g.verifyOnce(*account, password, check); err != nil {
		decision := g.policy.OnFailure(*account, now)
		if err := g.applyDecision(ctx, account, decision); err != nil {
			return nil, err
		}

		if decision.Action == LockoutLock {
			g.recordFailure(ctx, &accountID, identifier, domain.FailureReasonLockedAfter(decision.FailedAttempts), origin)
			g.observer.ObserveLogin("locked")
			g.observer.ObserveLockout()
			logger.WithContext(ctx, g.logger).Warn("account locked after repeated failures",
				zap.String("account_id", accountID),
				zap.Int("failed_attempts", decision.FailedAttempts),
				zap.Time("locked_until", *decision.LockedUntil),
			)
			return nil, &LockedError{Until: *decision.LockedUntil}
		}

		g.recordFailure(ctx, &accountID, identifier, domain.FailureReasonInvalidPassword, origin)
		g.observer.ObserveLogin("bad_password")
		return nil, ErrBadPassword
	}

	if account.FailedAttempts != 0 || account.LockedUntil != nil {
		if err := g.applyDecision(ctx, account, g.policy.OnSuccess()); err != nil {
			return nil, err
		}
	}

	result, err := g.completeLogin(ctx, *account, origin, now, "login")
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		g.observer.ObserveLogin("store_unavailable")
		return nil, err
	}

	g.record(ctx, domain.LoginAuditEvent{
		AccountID:  &accountID,
		Identifier: identifier,
		Kind:       domain.AuditLoginSuccess,
		Success:    true,
		Origin:     origin,
	})
	g.observer.ObserveLogin("success")
	return result, nil
}

// applyDecision persists a lockout decision with a compare-and-swap on the account version.
// Conflicts are returned unwrapped so Login can retry.
func (g *AuthGateway) applyDecision(ctx context.Context, account *domain.Account, decision LockoutDecision) error {
	err := g.accounts.UpdateLockState(ctx, account.ID, account.Version, decision.FailedAttempts, decision.LockedUntil)
	switch {
	case err == nil:
		account.Version++
		account.FailedAttempts = decision.FailedAttempts
		account.LockedUntil = decision.LockedUntil
		return nil
	case errors.Is(err, repository.ErrVersionConflict):
		return repository.ErrVersionConflict
	case isNotFound(err):
		return ErrNotFound
	default:
		g.observer.ObserveLogin("store_unavailable")
		return storeUnavailable("update lock state", err)
	}
}

// completeLogin records the last login and issues a token. Both steps are conditioned on
// the snapshot the password was verified against: a stale snapshot yields
// repository.ErrVersionConflict, and a token issued while the credentials changed is revoked.
func (g *AuthGateway) completeLogin(ctx context.Context, account domain.Account, origin domain.Origin, now time.Time, reason string) (*LoginResult, error) {
	if err := g.accounts.UpdateLastLogin(ctx, account.ID, account.Version, now, origin); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, repository.ErrVersionConflict
		case isNotFound(err):
			return nil, ErrNotFound
		default:
			return nil, storeUnavailable("record last login", err)
		}
	}
	account.Version++

	token, err := g.tokens.Issue(ctx, account, g.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	if err := g.confirmCredentials(ctx, account); err != nil {
		if revokeErr := g.tokens.Revoke(ctx, token.Value); revokeErr != nil {
			logger.WithContext(ctx, g.logger).Error("revoke token issued against stale credentials",
				zap.String("account_id", account.ID),
				zap.Error(revokeErr),
			)
		}
		return nil, err
	}
	g.observer.ObserveTokenIssued(reason)

	ip := origin.IP
	device := origin.Device.Descriptor()
	account.LastLoginAt = &now
	account.LastLoginIP = &ip
	account.LastLoginDevice = &device
	account.PasswordHash = ""

	return &LoginResult{Account: account, Token: *token}, nil
}

// confirmCredentials re-reads the account after a token was issued. A password change or
// deactivation that landed in between is reported as a version conflict.
func (g *AuthGateway) confirmCredentials(ctx context.Context, verified domain.Account) error {
	current, err := g.accounts.GetByID(ctx, verified.ID)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return storeUnavailable("confirm account", err)
	}
	if current.PasswordHash != verified.PasswordHash || !current.Active {
		return repository.ErrVersionConflict
	}
	return nil
}

// Register creates an account and signs it in. No lockout evaluation applies.
func (g *AuthGateway) Register(ctx context.Context, profile domain.AccountProfile, password string, origin domain.Origin) (*LoginResult, error) {
	profile = profile.Normalize()
	if err := g.validateProfile(profile); err != nil {
		return nil, err
	}
	if err := g.checkPasswordPolicy(password, profile.Email, profile.Handle, profile.DisplayName); err != nil {
		return nil, err
	}
	if g.hasher == nil {
		return nil, fmt.Errorf("password hasher not configured")
	}

	hash, err := g.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := g.now()
	role := profile.Role
	if role == "" {
		role = defaultAccountRole
	}
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        profile.Email,
		Handle:       profile.Handle,
		DisplayName:  profile.DisplayName,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := g.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrIdentifierTaken
		}
		return nil, storeUnavailable("create account", err)
	}

	result, err := g.completeLogin(ctx, account, origin, now, "registration")
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, storeUnavailable("sign in new account", err)
		}
		return nil, err
	}

	accountID := account.ID
	g.record(ctx, domain.LoginAuditEvent{
		AccountID:  &accountID,
		Identifier: account.Email,
		Kind:       domain.AuditLoginSuccess,
		Success:    true,
		Note:       domain.NoteRegistration,
		Origin:     origin,
	})

	if g.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			Email:        account.Email,
			Handle:       account.Handle,
			Role:         account.Role,
			RegisteredAt: now,
		}
		if err := g.events.PublishAccountRegistered(ctx, event); err != nil {
			logger.WithContext(ctx, g.logger).Warn("publish account registered failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return result, nil
}

func (g *AuthGateway) validateProfile(profile domain.AccountProfile) error {
	if profile.Email == "" || !g.verifier.isEmail(profile.Email) {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidProfile)
	}
	if profile.Handle == "" {
		return fmt.Errorf("%w: handle is required", ErrInvalidProfile)
	}
	if g.verifier.isEmail(profile.Handle) {
		return fmt.Errorf("%w: handle must not be an email address", ErrInvalidProfile)
	}
	return nil
}

func (g *AuthGateway) checkPasswordPolicy(password string, userInputs ...string) error {
	if g.passwords == nil {
		if strings.TrimSpace(password) == "" {
			return fmt.Errorf("%w: password is required", ErrPasswordPolicyViolation)
		}
		return nil
	}
	if err := g.passwords.Validate(password, userInputs...); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicyViolation, err)
	}
	return nil
}

// Logout revokes the presented token. Repeating the call is a no-op.
func (g *AuthGateway) Logout(ctx context.Context, tokenValue string, origin domain.Origin) error {
	account, _, err := g.tokens.Validate(ctx, tokenValue)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenNotFound):
		return nil
	case errors.Is(err, ErrTokenExpired):
		return g.tokens.Revoke(ctx, tokenValue)
	default:
		return err
	}

	if err := g.tokens.Revoke(ctx, tokenValue); err != nil {
		return err
	}
	g.observer.ObserveTokensRevoked("logout", 1)

	accountID := account.ID
	g.record(ctx, domain.LoginAuditEvent{
		AccountID:  &accountID,
		Identifier: account.Email,
		Kind:       domain.AuditLogout,
		Success:    true,
		Note:       domain.NoteLogout,
		Origin:     origin,
	})
	return nil
}

// LogoutAll revokes every token of the account.
func (g *AuthGateway) LogoutAll(ctx context.Context, account domain.Account, origin domain.Origin) (int64, error) {
	removed, err := g.tokens.RevokeAll(ctx, account.ID)
	if err != nil {
		return 0, err
	}
	g.observer.ObserveTokensRevoked("logout_all", removed)

	accountID := account.ID
	g.record(ctx, domain.LoginAuditEvent{
		AccountID:  &accountID,
		Identifier: account.Email,
		Kind:       domain.AuditLogout,
		Success:    true,
		Note:       domain.NoteLogoutAll,
		Origin:     origin,
	})
	return removed, nil
}

// Refresh replaces a valid token with a new one. It is silent unless AuditRefresh is set.
func (g *AuthGateway) Refresh(ctx context.Context, tokenValue string, origin domain.Origin) (*LoginResult, error) {
	account, token, err := g.tokens.Rotate(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	g.observer.ObserveTokenIssued("refresh")
	g.observer.ObserveTokensRevoked("refresh", 1)

	if g.cfg.AuditRefresh {
		accountID := account.ID
		g.record(ctx, domain.LoginAuditEvent{
			AccountID:  &accountID,
			Identifier: account.Email,
			Kind:       domain.AuditTokenRefresh,
			Success:    true,
			Origin:     origin,
		})
	}

	sanitized := *account
	sanitized.PasswordHash = ""
	return &LoginResult{Account: sanitized, Token: *token}, nil
}

// ChangePassword re-verifies the current password and stores a new hash.
// It never touches the lockout counter. When RevokeSessionsOnPasswordChange is set every
// other token of the account is revoked and currentToken survives.
func (g *AuthGateway) ChangePassword(ctx context.Context, accountID, currentToken, currentPassword, newPassword string) (int64, error) {
	account, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, storeUnavailable("load account", err)
	}

	if err := g.verifier.Verify(*account, currentPassword); err != nil {
		return 0, err
	}

	if currentPassword == newPassword {
		return 0, fmt.Errorf("%w: new password must be different from current password", ErrPasswordPolicyViolation)
	}
	if err := g.checkPasswordPolicy(newPassword, account.Email, account.Handle, account.DisplayName); err != nil {
		return 0, err
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	if err := g.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		if isNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, storeUnavailable("update password hash", err)
	}

	var revoked int64
	if g.cfg.RevokeSessionsOnPasswordChange {
		revoked, err = g.tokens.RevokeOthers(ctx, account.ID, currentToken)
		if err != nil {
			return 0, err
		}
		g.observer.ObserveTokensRevoked("password_change", revoked)
	}

	if g.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:       uuid.NewString(),
			AccountID:     account.ID,
			ChangedAt:     g.now(),
			TokensRevoked: revoked,
		}
		if err := g.events.PublishPasswordChanged(ctx, event); err != nil {
			logger.WithContext(ctx, g.logger).Warn("publish password changed failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return revoked, nil
}

// Authenticate resolves a bearer token to its account.
func (g *AuthGateway) Authenticate(ctx context.Context, tokenValue string) (*domain.Account, *domain.SessionToken, error) {
	account, token, err := g.tokens.Validate(ctx, tokenValue)
	if err != nil {
		return nil, nil, err
	}
	sanitized := *account
	sanitized.PasswordHash = ""
	return &sanitized, token, nil
}

func (g *AuthGateway) recordFailure(ctx context.Context, accountID *string, identifier, reason string, origin domain.Origin) {
	g.record(ctx, domain.LoginAuditEvent{
		AccountID:     accountID,
		Identifier:    identifier,
		Kind:          domain.AuditLoginFailure,
		Success:       false,
		FailureReason: &reason,
		Origin:        origin,
	})
}

func (g *AuthGateway) record(ctx context.Context, event domain.LoginAuditEvent) {
	if g.audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = g.now()
	}
	g.audit.Record(ctx, event)
}
