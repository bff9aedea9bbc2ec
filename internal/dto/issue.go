package dto

import (
	"github.com/civicfix/civicfix-api/internal/models"
)

// CreateIssueRequest payload for submitting a new report.
type CreateIssueRequest struct {
	Title       string               `json:"title" validate:"required,min=3,max=200"`
	Description string               `json:"description" validate:"max=5000"`
	Category    string               `json:"category" validate:"required"`
	Severity    models.IssueSeverity `json:"severity"`
	Priority    models.IssuePriority `json:"priority"`
	Latitude    float64              `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   float64              `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address     string               `json:"address"`
	MediaURLs   []string             `json:"media_urls"`
}

// UpdateStatusRequest drives a lifecycle transition.
type UpdateStatusRequest struct {
	Status models.IssueStatus `json:"status" validate:"required"`
	Notes  string             `json:"notes"`
}

// IssueQuery mirrors supported listing filters.
type IssueQuery struct {
	Status    string   `form:"status"`
	Category  string   `form:"category"`
	Severity  string   `form:"severity"`
	CreatedBy string   `form:"user_id"`
	Latitude  *float64 `form:"lat"`
	Longitude *float64 `form:"lng"`
	RadiusKM  float64  `form:"radius"`
	Page      int      `form:"page"`
	PageSize  int      `form:"per_page"`
}

// IssueDetail bundles the issue with its timeline for detail responses.
type IssueDetail struct {
	Issue    *models.Issue          `json:"issue"`
	Timeline []models.TimelineEvent `json:"timeline"`
}
