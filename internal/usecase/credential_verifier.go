package usecase

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/logger"
)

// CredentialVerifier resolves login identifiers to accounts and checks passwords.
// It never mutates account state.
type CredentialVerifier struct {
	accounts port.AccountRepository
	hasher   port.PasswordHasher
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCredentialVerifier constructs a CredentialVerifier.
func NewCredentialVerifier(accounts port.AccountRepository, hasher port.PasswordHasher, log *zap.Logger) *CredentialVerifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialVerifier{
		accounts: accounts,
		hasher:   hasher,
		validate: validator.New(),
		logger:   log,
	}
}

// Classify picks the lookup field: syntactically valid email addresses go to the email
// field, everything else is a handle. There is no fallback between the two.
func (v *CredentialVerifier) Classify(identifier string) domain.LoginIdentifierField {
	if v.isEmail(identifier) {
		return domain.LoginFieldEmail
	}
	return domain.LoginFieldHandle
}

func (v *CredentialVerifier) isEmail(identifier string) bool {
	return identifier != "" && v.validate.Var(identifier, "required,email") == nil
}

// Resolve looks up the single account matching identifier.
func (v *CredentialVerifier) Resolve(ctx context.Context, identifier string) (*domain.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}

	field := v.Classify(identifier)
	value := identifier
	if field == domain.LoginFieldEmail {
		value = strings.ToLower(identifier)
	}

	account, err := v.accounts.FindByLoginIdentifier(ctx, field, value)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storeUnavailable("find account", err)
	}
	return account, nil
}

// Verify compares password with the stored hash in constant time.
func (v *CredentialVerifier) Verify(account domain.Account, password string) error {
	ok, err := v.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		v.logger.Warn("stored password hash unusable",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
		return ErrBadPassword
	}
	if !ok {
		return ErrBadPassword
	}
	return nil
}

// ResolveAndVerify performs Resolve followed by Verify.
func (v *CredentialVerifier) ResolveAndVerify(ctx context.Context, identifier, password string) (*domain.Account, error) {
	account, err := v.Resolve(ctx, identifier)
	if err != nil {
		logger.WithContext(ctx, v.logger).Debug("credential lookup failed",
			zap.String("identifier", logger.MaskIdentifier(identifier)),
			zap.Error(err),
		)
		return nil, err
	}
	if err := v.Verify(*account, password); err != nil {
		return nil, err
	}
	return account, nil
}
