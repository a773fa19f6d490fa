package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrServiceTokenInvalid indicates the service credential failed signature or claim checks.
	ErrServiceTokenInvalid = errors.New("service token invalid")
	// ErrServiceTokenExpired indicates the service credential is past its expiry.
	ErrServiceTokenExpired = errors.New("service token expired")
)

// ServiceClaims identifies a downstream service calling the gateway.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// ServiceTokenConfig configures HS256 service-to-service credentials.
type ServiceTokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// ServiceTokenManager signs and verifies service credentials.
type ServiceTokenManager struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewServiceTokenManager returns nil when no secret is configured.
func NewServiceTokenManager(cfg ServiceTokenConfig) *ServiceTokenManager {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil
	}
	return &ServiceTokenManager{
		secret:   []byte(secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for issuing and verifying.
func (m *ServiceTokenManager) WithClock(now func() time.Time) *ServiceTokenManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issue signs a credential for the named service.
func (m *ServiceTokenManager) Issue(service string, ttl time.Duration) (string, error) {
	if m == nil {
		return "", fmt.Errorf("service token manager not configured")
	}
	now := m.now()
	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   service,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, issuer, audience and lifetime of a service credential.
func (m *ServiceTokenManager) Parse(raw string) (*ServiceClaims, error) {
	if m == nil {
		return nil, fmt.Errorf("service token manager not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrServiceTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceTokenInvalid, err)
	}
	if strings.TrimSpace(claims.Service) == "" {
		return nil, fmt.Errorf("%w: missing service claim", ErrServiceTokenInvalid)
	}

	return claims, nil
}
