package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/middleware"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error       string     `json:"error"`
	Code        string     `json:"code"`
	TraceID     string     `json:"trace_id,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		Code:    code,
		TraceID: middleware.GetTraceID(c),
	}
}

// AccountSummary is the public view of an account.
type AccountSummary struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Handle      string     `json:"handle"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func newAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:          account.ID,
		Email:       account.Email,
		Handle:      account.Handle,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		Active:      account.Active,
		LastLoginAt: account.LastLoginAt,
	}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required,max=254"`
	Password   string `json:"password" binding:"required,max=1024"`
}

// RegisterRequest defines the payload for the registration endpoint.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Handle      string `json:"handle" binding:"required,min=3,max=64"`
	DisplayName string `json:"display_name" binding:"max=128"`
	Password    string `json:"password" binding:"required,max=1024"`
	Role        string `json:"role" binding:"omitempty,oneof=staff cashier manager"`
}

// ChangePasswordRequest defines the payload for changing the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,max=1024"`
	NewPassword     string `json:"new_password" binding:"required,max=1024"`
}

// TokenResponse is returned by every endpoint that issues a token.
type TokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ExpiresIn   int            `json:"expires_in"`
	Account     AccountSummary `json:"account"`
}

func newTokenResponse(result *usecase.LoginResult, now time.Time) TokenResponse {
	expiresIn := int(result.Token.ExpiresAt.Sub(now).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return TokenResponse{
		AccessToken: result.Token.Value,
		TokenType:   "Bearer",
		ExpiresAt:   result.Token.ExpiresAt.UTC(),
		ExpiresIn:   expiresIn,
		Account:     newAccountSummary(result.Account),
	}
}

// MeResponse describes the caller and the token they presented.
type MeResponse struct {
	Account        AccountSummary `json:"account"`
	TokenExpiresAt time.Time      `json:"token_expires_at"`
	TokenScope     string         `json:"token_scope"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
