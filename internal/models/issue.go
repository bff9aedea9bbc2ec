package models

import (
	"time"

	"github.com/lib/pq"
)

// IssueStatus enumerates lifecycle states. Transitions are owned exclusively
// by the lifecycle service; see service.LifecycleService.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "OPEN"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusClosed     IssueStatus = "CLOSED"
)

// IssuePriority captures triage priority.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "LOW"
	PriorityMedium IssuePriority = "MEDIUM"
	PriorityHigh   IssuePriority = "HIGH"
)

// IssueSeverity captures reported impact.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "LOW"
	SeverityMedium   IssueSeverity = "MEDIUM"
	SeverityHigh     IssueSeverity = "HIGH"
	SeverityCritical IssueSeverity = "CRITICAL"
)

// VerificationCacheStatus mirrors the latest verification outcome on the
// issue row. Derived from the verification tables, never authoritative.
type VerificationCacheStatus string

const (
	VerificationCachePending     VerificationCacheStatus = "PENDING"
	VerificationCacheApproved    VerificationCacheStatus = "APPROVED"
	VerificationCacheRejected    VerificationCacheStatus = "REJECTED"
	VerificationCacheReview      VerificationCacheStatus = "NEEDS_REVIEW"
	VerificationCacheVerified    VerificationCacheStatus = "VERIFIED"
	VerificationCacheNotVerified VerificationCacheStatus = "NOT_VERIFIED"
	VerificationCacheDisputed    VerificationCacheStatus = "DISPUTED"
)

// IssueEscalationStatus is the issue-side summary of escalation state.
type IssueEscalationStatus string

const (
	IssueEscalationNone      IssueEscalationStatus = "NONE"
	IssueEscalationEscalated IssueEscalationStatus = "ESCALATED"
	IssueEscalationResolved  IssueEscalationStatus = "RESOLVED"
)

// Issue is a citizen-reported civic problem record.
type Issue struct {
	ID          string        `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	Category    string        `db:"category" json:"category"`
	Status      IssueStatus   `db:"status" json:"status"`
	Priority    IssuePriority `db:"priority" json:"priority"`
	Severity    IssueSeverity `db:"severity" json:"severity"`

	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	Address   string  `db:"address" json:"address"`

	CreatedBy          string         `db:"created_by" json:"created_by"`
	MediaURLs          pq.StringArray `db:"media_urls" json:"media_urls"`
	AssignedDepartment *string        `db:"assigned_department" json:"assigned_department,omitempty"`
	AssignedTo         *string        `db:"assigned_to" json:"assigned_to,omitempty"`

	AIVerificationStatus      VerificationCacheStatus `db:"ai_verification_status" json:"ai_verification_status"`
	CitizenVerificationStatus VerificationCacheStatus `db:"citizen_verification_status" json:"citizen_verification_status"`
	EscalationStatus          IssueEscalationStatus   `db:"escalation_status" json:"escalation_status"`
	TrustScore                float64                 `db:"trust_score" json:"trust_score"`

	UpvoteCount  int `db:"upvote_count" json:"upvote_count"`
	CommentCount int `db:"comment_count" json:"comment_count"`

	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	ResolutionDate *time.Time `db:"resolution_date" json:"resolution_date,omitempty"`
}

// IssueFilter constrains listing queries.
type IssueFilter struct {
	Status    IssueStatus
	Category  string
	Severity  IssueSeverity
	CreatedBy string
	Latitude  *float64
	Longitude *float64
	RadiusKM  float64
	Page      int
	PageSize  int
}

// Categories is the fixed set of report categories exposed to clients.
var Categories = []string{
	"POTHOLE",
	"STREETLIGHT",
	"GARBAGE",
	"WATER_LEAKAGE",
	"SEWAGE",
	"ROAD_DAMAGE",
	"TRAFFIC_SIGNAL",
	"TREE_FALLEN",
	"OTHER",
}
