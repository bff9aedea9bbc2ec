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

// VerificationHandler exposes AI and citizen verification endpoints.
type VerificationHandler struct {
	verifications *service.VerificationService
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(verifications *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verifications: verifications}
}

// RecordAI godoc
// @Summary Record an AI verification pass
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.RecordAIVerificationRequest true "Verification payload"
// @Success 201 {object} response.Envelope
// @Router /issues/{id}/verifications/ai [post]
func (h *VerificationHandler) RecordAI(c *gin.Context) {
	var req dto.RecordAIVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	v, err := h.verifications.RecordAI(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// RecordCitizen godoc
// @Summary Record a citizen verification
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.RecordCitizenVerificationRequest true "Verification payload"
// @Success 201 {object} response.Envelope
// @Router /issues/{id}/verifications/citizen [post]
func (h *VerificationHandler) RecordCitizen(c *gin.Context) {
	var req dto.RecordCitizenVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	v, err := h.verifications.RecordCitizen(c.Request.Context(), c.Param("id"), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// ListCitizen godoc
// @Summary List citizen verifications for an issue
// @Tags Verifications
// @Produce json
// @Param id path string true "Issue ID"
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/verifications [get]
func (h *VerificationHandler) ListCitizen(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.verifications.ListCitizen(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
