package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

const (
	accountKey = "account"
	tokenKey   = "session_token"
	roleKey    = "role"
)

// Authenticator resolves bearer tokens. *usecase.AuthGateway satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenValue string) (*domain.Account, *domain.SessionToken, error)
}

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		Code:    code,
		TraceID: GetTraceID(c),
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok {
		return "", "invalid authorization format: expected 'Bearer <token>'"
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization format: must start with 'Bearer'"
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", "missing access token"
	}
	return token, ""
}

// RequireAuth validates the bearer token and stores the owning account on the context.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := BearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "unauthenticated", problem))
			return
		}

		account, session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "token_expired", "access token expired"))
			case errors.Is(err, usecase.ErrTokenNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "token_not_found", "invalid access token"))
			case errors.Is(err, usecase.ErrStoreUnavailable):
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "store_unavailable", "authentication temporarily unavailable"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "internal", "authentication failed"))
			}
			return
		}

		session.Value = token
		c.Set(AccountIDKey, account.ID)
		c.Set(accountKey, account)
		c.Set(tokenKey, session)
		c.Set(roleKey, account.Role)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.AccountID = account.ID
		}

		c.Next()
	}
}

// RequireRole checks if the authenticated account has any of the specified roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get(roleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "unauthenticated", "authentication required"))
			return
		}

		role, ok := roleVal.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "internal", "invalid role format"))
			return
		}

		if !hasAnyRole(role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "forbidden", "insufficient permissions"))
			return
		}

		c.Next()
	}
}

func hasAnyRole(role string, required []string) bool {
	for _, candidate := range required {
		if strings.EqualFold(role, candidate) {
			return true
		}
	}
	return false
}

// GetAuthenticatedAccountID retrieves the account ID from context (helper for handlers)
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	accountID, exists := c.Get(AccountIDKey)
	if !exists {
		return "", false
	}

	if id, ok := accountID.(string); ok {
		return id, true
	}

	return "", false
}

// GetAuthenticatedAccount returns the account resolved by RequireAuth.
func GetAuthenticatedAccount(c *gin.Context) (*domain.Account, bool) {
	raw, exists := c.Get(accountKey)
	if !exists {
		return nil, false
	}
	account, ok := raw.(*domain.Account)
	return account, ok && account != nil
}

// GetSessionToken returns the token presented on the request, with Value populated.
func GetSessionToken(c *gin.Context) (*domain.SessionToken, bool) {
	raw, exists := c.Get(tokenKey)
	if !exists {
		return nil, false
	}
	token, ok := raw.(*domain.SessionToken)
	return token, ok && token != nil
}
