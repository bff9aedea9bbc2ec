package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/service"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/response"
)

// EscalationHandler exposes the administrator escalation workflow.
type EscalationHandler struct {
	escalations *service.EscalationService
}

// NewEscalationHandler constructs EscalationHandler.
func NewEscalationHandler(escalations *service.EscalationService) *EscalationHandler {
	return &EscalationHandler{escalations: escalations}
}

// List godoc
// @Summary List escalations
// @Tags Escalations
// @Produce json
// @Param status query string false "Filter by status"
// @Param issue_id query string false "Filter by issue"
// @Param limit query int false "Max rows"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /escalations [get]
func (h *EscalationHandler) List(c *gin.Context) {
	var query dto.EscalationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	escalations, err := h.escalations.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, escalations, nil)
}

// Get godoc
// @Summary Get escalation detail
// @Tags Escalations
// @Produce json
// @Param id path string true "Escalation ID"
// @Success 200 {object} response.Envelope
// @Router /escalations/{id} [get]
func (h *EscalationHandler) Get(c *gin.Context) {
	escalation, err := h.escalations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, escalation, nil)
}

// Review godoc
// @Summary Apply a review decision to an escalation
// @Tags Escalations
// @Accept json
// @Produce json
// @Param id path string true "Escalation ID"
// @Param payload body dto.ReviewEscalationRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /escalations/{id} [patch]
func (h *EscalationHandler) Review(c *gin.Context) {
	var req dto.ReviewEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	auth := authFromContext(c)
	escalation, err := h.escalations.Review(c.Request.Context(), c.Param("id"), auth.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, escalation, nil)
}
