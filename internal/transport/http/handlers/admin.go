package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/pos-auth-gateway/internal/transport/http/middleware"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

var adminErrorCases = []ErrorCase{
	{Err: usecase.ErrNotFound, Status: http.StatusNotFound, Code: "account_not_found", Message: "account not found"},
	{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Code: "store_unavailable", Message: "service temporarily unavailable"},
}

// AdminHandler exposes account administration for back-office operators.
type AdminHandler struct {
	accounts *usecase.AccountAdminService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(accounts *usecase.AccountAdminService) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// RegisterRoutes binds the account administration routes. The group must already enforce authentication and role.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/accounts/:id/deactivate", h.deactivate)
	r.POST("/accounts/:id/activate", h.activate)
	r.POST("/accounts/:id/unlock", h.unlock)
}

// Deactivate godoc
// @Summary Deactivate an account and revoke its tokens
// @Tags Admin
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Account ID"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/accounts/{id}/deactivate [post]
func (h *AdminHandler) deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Activate godoc
// @Summary Reactivate an account
// @Tags Admin
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Account ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/accounts/{id}/activate [post]
func (h *AdminHandler) activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *AdminHandler) setActive(c *gin.Context, active bool) {
	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_request", "account id is required"))
		return
	}

	actor, _ := middleware.GetAuthenticatedAccountID(c)
	if _, err := h.accounts.SetActive(c.Request.Context(), accountID, active, actor); err != nil {
		RespondWithMappedError(c, err, adminErrorCases, http.StatusInternalServerError, "failed to update account")
		return
	}

	c.Status(http.StatusNoContent)
}

// Unlock godoc
// @Summary Clear the lockout state of an account
// @Tags Admin
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Account ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/accounts/{id}/unlock [post]
func (h *AdminHandler) unlock(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_request", "account id is required"))
		return
	}

	if err := h.accounts.Unlock(c.Request.Context(), accountID); err != nil {
		RespondWithMappedError(c, err, adminErrorCases, http.StatusInternalServerError, "failed to unlock account")
		return
	}

	c.Status(http.StatusNoContent)
}
