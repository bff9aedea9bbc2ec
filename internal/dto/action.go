package dto

import (
	"encoding/json"

	"github.com/civicfix/civicfix-api/internal/models"
)

// RecordActionRequest captures a department action on an issue.
type RecordActionRequest struct {
	ActionType models.GovernmentActionType `json:"action_type" validate:"required"`
	Department string                      `json:"department" validate:"required"`
	AssigneeID string                      `json:"assignee_id"`
	Notes      string                      `json:"notes"`
	ImageURLs  []string                    `json:"image_urls"`
	Metadata   json.RawMessage             `json:"metadata"`
}
