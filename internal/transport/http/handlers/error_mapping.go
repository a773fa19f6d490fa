package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// authErrorCases covers every failure kind the gateway reports.
// Unknown accounts and bad passwords share one message.
var authErrorCases = []ErrorCase{
	{Err: usecase.ErrNotFound, Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: usecase.InvalidCredentialsMessage},
	{Err: usecase.ErrBadPassword, Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: usecase.InvalidCredentialsMessage},
	{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Code: "account_locked", Message: "account temporarily locked"},
	{Err: usecase.ErrAccountInactive, Status: http.StatusForbidden, Code: "account_inactive", Message: "account is inactive"},
	{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Code: "token_expired", Message: "access token expired"},
	{Err: usecase.ErrTokenNotFound, Status: http.StatusUnauthorized, Code: "token_not_found", Message: "invalid access token"},
	{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Code: "store_unavailable", Message: "service temporarily unavailable"},
	{Err: usecase.ErrIdentifierTaken, Status: http.StatusConflict, Code: "identifier_taken", Message: "email or handle already registered"},
	{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Code: "password_policy", Message: "password does not meet requirements"},
	{Err: usecase.ErrInvalidProfile, Status: http.StatusBadRequest, Code: "invalid_profile", Message: "invalid account details"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		resp := NewErrorResponse(c, cs.Code, cs.Message)
		if until, ok := usecase.LockedUntil(err); ok {
			until = until.UTC()
			resp.LockedUntil = &until
		}
		if cs.Status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(cs.Status, resp)
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, "internal", fallbackMessage))
}

func respondAuthError(c *gin.Context, err error, fallbackMessage string) {
	RespondWithMappedError(c, err, authErrorCases, http.StatusInternalServerError, fallbackMessage)
}
