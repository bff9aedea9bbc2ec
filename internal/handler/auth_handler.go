package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	"github.com/civicfix/civicfix-api/internal/service"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/response"
)

// AuthHandler exposes provider sync and profile endpoints.
type AuthHandler struct {
	users *service.UserService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(users *service.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

// Sync godoc
// @Summary Sync the caller's profile from the identity provider
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body dto.SyncUserRequest false "Profile supplement"
// @Success 200 {object} response.Envelope
// @Router /auth/sync [post]
func (h *AuthHandler) Sync(c *gin.Context) {
	var req dto.SyncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.users.Sync(c.Request.Context(), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Me godoc
// @Summary Get the caller's profile
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	auth := authFromContext(c)
	user, err := h.users.Profile(c.Request.Context(), auth.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// UpdateRole godoc
// @Summary Change a user's role
// @Tags Auth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Success 204
// @Router /users/{id}/role [put]
func (h *AuthHandler) UpdateRole(c *gin.Context) {
	var req struct {
		Role       models.UserRole `json:"role" binding:"required"`
		Department *string         `json:"department"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.users.UpdateRole(c.Request.Context(), c.Param("id"), req.Role, req.Department); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
