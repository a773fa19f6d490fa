package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	appLogger "github.com/arklim/pos-auth-gateway/internal/infra/logger"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/middleware"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	gateway    *usecase.AuthGateway
	classifier port.DeviceClassifier
	logger     *zap.Logger
	now        func() time.Time
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithDeviceClassifier installs the user-agent classifier used to describe the caller's device.
func WithDeviceClassifier(classifier port.DeviceClassifier) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.classifier = classifier
	}
}

// WithHandlerClock overrides the clock used to compute expires_in.
func WithHandlerClock(now func() time.Time) AuthHandlerOption {
	return func(h *AuthHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(gateway *usecase.AuthGateway, logger *zap.Logger, opts ...AuthHandlerOption) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &AuthHandler{
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds authentication routes. Credential endpoints get the throttling middlewares.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, loginMiddlewares, registerMiddlewares []gin.HandlerFunc) {
	r.POST("/login", chain(loginMiddlewares, h.login)...)
	r.POST("/register", chain(registerMiddlewares, h.register)...)

	r.POST("/logout", requireAuth, h.logout)
	r.POST("/logout-all", requireAuth, h.logoutAll)
	r.POST("/refresh", requireAuth, h.refresh)
	r.POST("/change-password", requireAuth, h.changePassword)
	r.GET("/me", requireAuth, h.me)
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	out = append(out, middlewares...)
	return append(out, handler)
}

// origin describes the caller from the connection and its User-Agent header.
func (h *AuthHandler) origin(c *gin.Context) domain.Origin {
	ua := c.Request.UserAgent()
	origin := domain.Origin{
		IP:        c.ClientIP(),
		UserAgent: ua,
	}
	if h.classifier != nil && ua != "" {
		origin.Device = h.classifier.Classify(ua)
	}
	return origin
}

// Login godoc
// @Summary Sign in with an email or handle
// @Description Verifies the password and issues an opaque bearer token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_request", "identifier and password are required"))
		return
	}

	result, err := h.gateway.Login(c.Request.Context(), req.Identifier, req.Password, h.origin(c))
	if err != nil {
		appLogger.WithContext(c.Request.Context(), h.logger).Debug("login rejected",
			zap.String("identifier", appLogger.MaskIdentifier(req.Identifier)),
			zap.Error(err),
		)
		respondAuthError(c, err, "failed to sign in")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result, h.now()))
}

// Register godoc
// @Summary Register a new till account
// @Description Creates the account and signs it in.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request payload"
// @Success 201 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_request", "invalid registration payload"))
		return
	}

	profile := domain.AccountProfile{
		Email:       req.Email,
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	}

	result, err := h.gateway.Register(c.Request.Context(), profile, req.Password, h.origin(c))
	if err != nil {
		respondAuthError(c, err, "failed to register account")
		return
	}

	c.JSON(http.StatusCreated, newTokenResponse(result, h.now()))
}

// Logout godoc
// @Summary Revoke the presented token
// @Tags Sessions
// @Param Authorization header string true "Bearer access token"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	token, ok := middleware.GetSessionToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthenticated", "authentication required"))
		return
	}

	if err := h.gateway.Logout(c.Request.Context(), token.Value, h.origin(c)); err != nil {
		respondAuthError(c, err, "failed to sign out")
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary Revoke every token of the caller
// @Tags Sessions
// @Param Authorization header string true "Bearer access token"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout-all [post]
func (h *AuthHandler) logoutAll(c *gin.Context) {
	account, ok := middleware.GetAuthenticatedAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthenticated", "authentication required"))
		return
	}

	if _, err := h.gateway.LogoutAll(c.Request.Context(), *account, h.origin(c)); err != nil {
		respondAuthError(c, err, "failed to sign out")
		return
	}

	c.Status(http.StatusNoContent)
}

// Refresh godoc
// @Summary Exchange the presented token for a new one
// @Tags Sessions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	token, ok := middleware.GetSessionToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthenticated", "authentication required"))
		return
	}

	result, err := h.gateway.Refresh(c.Request.Context(), token.Value, h.origin(c))
	if err != nil {
		respondAuthError(c, err, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result, h.now()))
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Tags Authentication
// @Accept json
// @Param Authorization header string true "Bearer access token"
// @Param request body ChangePasswordRequest true "Password change payload"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/change-password [post]
func (h *AuthHandler) changePassword(c *gin.Context) {
	account, ok := middleware.GetAuthenticatedAccount(c)
	token, hasToken := middleware.GetSessionToken(c)
	if !ok || !hasToken {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthenticated", "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_request", "current_password and new_password are required"))
		return
	}

	if _, err := h.gateway.ChangePassword(c.Request.Context(), account.ID, token.Value, req.CurrentPassword, req.NewPassword); err != nil {
		respondAuthError(c, err, "failed to change password")
		return
	}

	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary Describe the caller and the presented token
// @Tags Sessions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	account, ok := middleware.GetAuthenticatedAccount(c)
	token, hasToken := middleware.GetSessionToken(c)
	if !ok || !hasToken {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthenticated", "authentication required"))
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		Account:        newAccountSummary(*account),
		TokenExpiresAt: token.ExpiresAt.UTC(),
		TokenScope:     token.Scope,
	})
}
