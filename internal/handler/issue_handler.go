package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/service"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/response"
)

// IssueHandler exposes report intake, reads, and lifecycle endpoints.
type IssueHandler struct {
	issues    *service.IssueService
	lifecycle *service.LifecycleService
}

// NewIssueHandler constructs IssueHandler.
func NewIssueHandler(issues *service.IssueService, lifecycle *service.LifecycleService) *IssueHandler {
	return &IssueHandler{issues: issues, lifecycle: lifecycle}
}

// Create godoc
// @Summary Report a new issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body dto.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	var req dto.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.issues.Create(c.Request.Context(), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// List godoc
// @Summary List issues
// @Tags Issues
// @Produce json
// @Param status query string false "Filter by status"
// @Param category query string false "Filter by category"
// @Param severity query string false "Filter by severity"
// @Param user_id query string false "Filter by reporter"
// @Param lat query number false "Latitude for proximity search"
// @Param lng query number false "Longitude for proximity search"
// @Param radius query number false "Search radius in km"
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var query dto.IssueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	issues, pagination, err := h.issues.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// Get godoc
// @Summary Get issue detail with timeline
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	detail, err := h.issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Timeline godoc
// @Summary Get issue event history
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/timeline [get]
func (h *IssueHandler) Timeline(c *gin.Context) {
	events, err := h.issues.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// UpdateStatus godoc
// @Summary Transition issue status
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.UpdateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/status [patch]
func (h *IssueHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.lifecycle.Transition(c.Request.Context(), c.Param("id"), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// RecordAction godoc
// @Summary Record a government action
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.RecordActionRequest true "Action payload"
// @Success 201 {object} response.Envelope
// @Router /issues/{id}/actions [post]
func (h *IssueHandler) RecordAction(c *gin.Context) {
	var req dto.RecordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	action, err := h.lifecycle.RecordAction(c.Request.Context(), c.Param("id"), authFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, action)
}

// ListActions godoc
// @Summary List government actions for an issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/actions [get]
func (h *IssueHandler) ListActions(c *gin.Context) {
	actions, err := h.lifecycle.ListActions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

// MediaToken godoc
// @Summary Issue a time-bounded media access token
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Param key query string true "Media object key"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/media-token [post]
func (h *IssueHandler) MediaToken(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "key is required"))
		return
	}
	token, expiresAt, err := h.issues.MediaToken(c.Request.Context(), c.Param("id"), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "expires_at": expiresAt}, nil)
}

// Categories godoc
// @Summary List report categories
// @Tags Issues
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /issues/categories [get]
func (h *IssueHandler) Categories(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.issues.Categories(), nil)
}
