package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/service"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/response"
)

// InteractionHandler exposes upvote and comment endpoints.
type InteractionHandler struct {
	interactions *service.InteractionService
}

// NewInteractionHandler constructs InteractionHandler.
func NewInteractionHandler(interactions *service.InteractionService) *InteractionHandler {
	return &InteractionHandler{interactions: interactions}
}

// ToggleUpvote godoc
// @Summary Toggle the caller's upvote on an issue
// @Tags Interactions
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/upvote [post]
func (h *InteractionHandler) ToggleUpvote(c *gin.Context) {
	result, err := h.interactions.ToggleUpvote(c.Request.Context(), c.Param("id"), authFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AddComment godoc
// @Summary Comment on an issue
// @Tags Interactions
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.AddCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /issues/{id}/comments [post]
func (h *InteractionHandler) AddComment(c *gin.Context) {
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	comment, err := h.interactions.AddComment(c.Request.Context(), c.Param("id"), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// ListComments godoc
// @Summary List comments on an issue
// @Tags Interactions
// @Produce json
// @Param id path string true "Issue ID"
// @Param limit query int false "Max rows"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/comments [get]
func (h *InteractionHandler) ListComments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	comments, err := h.interactions.ListComments(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// DeleteComment godoc
// @Summary Delete the caller's own comment
// @Tags Interactions
// @Param id path string true "Comment ID"
// @Success 204
// @Router /comments/{id} [delete]
func (h *InteractionHandler) DeleteComment(c *gin.Context) {
	if err := h.interactions.DeleteComment(c.Request.Context(), c.Param("id"), authFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
