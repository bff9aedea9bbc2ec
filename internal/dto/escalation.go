package dto

import "github.com/civicfix/civicfix-api/internal/models"

// ReviewEscalationRequest captures an administrator decision.
type ReviewEscalationRequest struct {
	Status models.EscalationStatus `json:"status" validate:"required"`
	Notes  string                  `json:"notes"`
}

// EscalationQuery mirrors supported listing filters.
type EscalationQuery struct {
	Status  string `form:"status"`
	IssueID string `form:"issue_id"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}
