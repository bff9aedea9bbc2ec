package models

import "time"

// EscalationStatus tracks the escalation's own workflow, independent of the
// parent issue's status.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "PENDING"
	EscalationApproved EscalationStatus = "APPROVED"
	EscalationFiled    EscalationStatus = "FILED"
	EscalationRejected EscalationStatus = "REJECTED"
	EscalationResolved EscalationStatus = "RESOLVED"
)

// Trigger reasons, in evaluation priority order.
const (
	TriggerDisputedResolution      = "disputed_resolution"
	TriggerRepeatedNonVerification = "repeated_non_verification"
	TriggerLowTrustResolution      = "low_trust_resolution"
)

// Escalation tracks promotion of an issue to a higher-authority workflow.
// At most one non-terminal escalation exists per issue at a time; the
// escalation service enforces that, not the schema.
type Escalation struct {
	ID             string           `db:"id" json:"id"`
	IssueID        string           `db:"issue_id" json:"issue_id"`
	TriggerReason  string           `db:"trigger_reason" json:"trigger_reason"`
	Evidence       []byte           `db:"evidence" json:"evidence,omitempty"`
	NearestStation *string          `db:"nearest_station" json:"nearest_station,omitempty"`
	Status         EscalationStatus `db:"status" json:"status"`
	AdminNotes     *string          `db:"admin_notes" json:"admin_notes,omitempty"`
	AdminID        *string          `db:"admin_id" json:"admin_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EvidenceBundle aggregates references to the rows that justified an
// escalation. Serialized to JSON into Escalation.Evidence.
type EvidenceBundle struct {
	TimelineEventIDs       []string `json:"timeline_event_ids,omitempty"`
	CitizenVerificationIDs []string `json:"citizen_verification_ids,omitempty"`
	AIVerificationIDs      []string `json:"ai_verification_ids,omitempty"`
	TrustScore             float64  `json:"trust_score"`
}

// EscalationFilter constrains listing queries.
type EscalationFilter struct {
	Status  EscalationStatus
	IssueID string
	Limit   int
	Offset  int
}
