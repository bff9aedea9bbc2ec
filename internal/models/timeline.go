package models

import (
	"time"

	"github.com/lib/pq"
)

// ActorType identifies who performed a timeline action.
type ActorType string

const (
	ActorCitizen    ActorType = "CITIZEN"
	ActorAI         ActorType = "AI"
	ActorGovernment ActorType = "GOVERNMENT"
	ActorSystem     ActorType = "SYSTEM"
)

// Timeline event types.
const (
	EventIssueCreated                 = "ISSUE_CREATED"
	EventStatusChanged                = "STATUS_CHANGED"
	EventAIVerificationCompleted      = "AI_VERIFICATION_COMPLETED"
	EventIssueRejected                = "ISSUE_REJECTED"
	EventGovernmentAssigned           = "GOVERNMENT_ASSIGNED"
	EventWorkStarted                  = "WORK_STARTED"
	EventProgressUpdate               = "PROGRESS_UPDATE"
	EventWorkCompleted                = "WORK_COMPLETED"
	EventCitizenVerificationCompleted = "CITIZEN_VERIFICATION_COMPLETED"
	EventIssueClosed                  = "ISSUE_CLOSED"
	EventIssueDisputed                = "ISSUE_DISPUTED"
	EventEscalationTriggered          = "ESCALATION_TRIGGERED"
	EventCommentAdded                 = "COMMENT_ADDED"
)

// TimelineEvent is one immutable log entry tied to an issue. Rows are never
// updated or deleted; an issue's history is reconstructible from this table
// alone, ordered by created_at with insertion order as tiebreak.
type TimelineEvent struct {
	ID          string         `db:"id" json:"id"`
	IssueID     string         `db:"issue_id" json:"issue_id"`
	EventType   string         `db:"event_type" json:"event_type"`
	ActorType   ActorType      `db:"actor_type" json:"actor_type"`
	ActorID     *string        `db:"actor_id" json:"actor_id,omitempty"`
	Description string         `db:"description" json:"description"`
	Metadata    []byte         `db:"metadata" json:"metadata,omitempty"`
	ImageURLs   pq.StringArray `db:"image_urls" json:"image_urls,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
