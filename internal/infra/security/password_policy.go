package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/pos-auth-gateway/internal/core/port"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicyConfig tunes the password policy.
type PasswordPolicyConfig struct {
	MinLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicyConfig returns the built-in policy thresholds.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           10,
		MinCharacterClasses: 3,
		MinStrengthScore:    3,
	}
}

// PasswordPolicy checks length, character variety and zxcvbn strength.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy builds a policy; zero values fall back to defaults.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	defaults := DefaultPasswordPolicyConfig()
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaults.MinLength
	}
	if cfg.MinCharacterClasses < 0 {
		cfg.MinCharacterClasses = 0
	}
	if cfg.MinStrengthScore > 4 {
		cfg.MinStrengthScore = 4
	}
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns the first violation found. userInputs (email, handle, display name)
// are penalised by the strength estimator.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	if len([]rune(password)) < p.cfg.MinLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.cfg.MinLength),
		}
	}

	if classes := countCharacterClasses(password); classes < p.cfg.MinCharacterClasses {
		return &PasswordValidationError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", p.cfg.MinCharacterClasses),
		}
	}

	for _, input := range userInputs {
		input = strings.TrimSpace(input)
		if len(input) >= 3 && strings.Contains(strings.ToLower(password), strings.ToLower(input)) {
			return &PasswordValidationError{
				Code:    "contains_identifier",
				Message: "password must not contain your email or handle",
			}
		}
	}

	if p.cfg.MinStrengthScore > 0 {
		if result := zxcvbn.PasswordStrength(password, userInputs); result.Score < p.cfg.MinStrengthScore {
			return &PasswordValidationError{
				Code:    "weak_password",
				Message: "password is too weak; choose a more complex value",
			}
		}
	}

	return nil
}

func countCharacterClasses(password string) int {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r) || unicode.IsSpace(r):
			symbol = true
		}
	}

	classes := 0
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			classes++
		}
	}
	return classes
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
