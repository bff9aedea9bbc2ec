package models

import "time"

// NotificationStatus tracks delivery state of a queue entry.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationRead    NotificationStatus = "READ"
)

// Notification types.
const (
	NotifyStatusChanged        = "STATUS_CHANGED"
	NotifyVerificationRecorded = "VERIFICATION_RECORDED"
	NotifyEscalationCreated    = "ESCALATION_CREATED"
	NotifyEscalationReviewed   = "ESCALATION_REVIEWED"
	NotifyCommentAdded         = "COMMENT_ADDED"
)

// NotificationQueueEntry buffers a "user should be told X" event for the
// delivery worker. Only MarkSent/MarkFailed (worker) and MarkRead (recipient)
// mutate a row after creation.
type NotificationQueueEntry struct {
	ID        string             `db:"id" json:"id"`
	UserID    string             `db:"user_id" json:"user_id"`
	IssueID   *string            `db:"issue_id" json:"issue_id,omitempty"`
	Type      string             `db:"type" json:"type"`
	Title     string             `db:"title" json:"title"`
	Message   string             `db:"message" json:"message"`
	Data      []byte             `db:"data" json:"data,omitempty"`
	Status    NotificationStatus `db:"status" json:"status"`
	SentAt    *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	ReadAt    *time.Time         `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}
