package models

import (
	"time"

	"github.com/lib/pq"
)

// GovernmentActionType enumerates department actions on an issue.
type GovernmentActionType string

const (
	ActionAssigned  GovernmentActionType = "ASSIGNED"
	ActionStarted   GovernmentActionType = "STARTED"
	ActionUpdated   GovernmentActionType = "UPDATED"
	ActionCompleted GovernmentActionType = "COMPLETED"
	ActionRejected  GovernmentActionType = "REJECTED"
)

// GovernmentAction is one department action on an issue; append-only.
type GovernmentAction struct {
	ID         string               `db:"id" json:"id"`
	IssueID    string               `db:"issue_id" json:"issue_id"`
	ActionType GovernmentActionType `db:"action_type" json:"action_type"`
	Department string               `db:"department" json:"department"`
	AssigneeID *string              `db:"assignee_id" json:"assignee_id,omitempty"`
	Notes      string               `db:"notes" json:"notes"`
	ImageURLs  pq.StringArray       `db:"image_urls" json:"image_urls,omitempty"`
	Metadata   []byte               `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
}
