package models

import (
	"time"

	"github.com/lib/pq"
)

// AIVerificationType distinguishes verification passes.
type AIVerificationType string

const (
	AIVerificationInitial      AIVerificationType = "INITIAL"
	AIVerificationCross        AIVerificationType = "CROSS_VERIFICATION"
	AIVerificationRevalidation AIVerificationType = "REVALIDATION"
)

// AIVerificationStatus is the outcome of one AI pass.
type AIVerificationStatus string

const (
	AIStatusApproved    AIVerificationStatus = "APPROVED"
	AIStatusRejected    AIVerificationStatus = "REJECTED"
	AIStatusNeedsReview AIVerificationStatus = "NEEDS_REVIEW"
	AIStatusPending     AIVerificationStatus = "PENDING"
)

// AIVerification is one verification pass result. Rows are immutable;
// a re-run inserts a new row rather than editing an old one.
type AIVerification struct {
	ID               string               `db:"id" json:"id"`
	IssueID          string               `db:"issue_id" json:"issue_id"`
	VerificationType AIVerificationType   `db:"verification_type" json:"verification_type"`
	Status           AIVerificationStatus `db:"status" json:"status"`
	Confidence       float64              `db:"confidence" json:"confidence"`
	RejectionReasons pq.StringArray       `db:"rejection_reasons" json:"rejection_reasons,omitempty"`
	ChecksPerformed  []byte               `db:"checks_performed" json:"checks_performed,omitempty"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
}

// CitizenVerificationType distinguishes citizen attestations.
type CitizenVerificationType string

const (
	CitizenVerificationFinal    CitizenVerificationType = "FINAL_VERIFICATION"
	CitizenVerificationProgress CitizenVerificationType = "PROGRESS_CHECK"
	CitizenVerificationDispute  CitizenVerificationType = "DISPUTE"
)

// CitizenVerificationStatus is the outcome of a citizen attestation.
type CitizenVerificationStatus string

const (
	CitizenStatusVerified    CitizenVerificationStatus = "VERIFIED"
	CitizenStatusNotVerified CitizenVerificationStatus = "NOT_VERIFIED"
	CitizenStatusDisputed    CitizenVerificationStatus = "DISPUTED"
)

// CitizenVerification records a citizen's confirmation or dispute of
// government-claimed work. Immutable once created; one citizen may submit
// several over an issue's life.
type CitizenVerification struct {
	ID               string                    `db:"id" json:"id"`
	IssueID          string                    `db:"issue_id" json:"issue_id"`
	UserID           string                    `db:"user_id" json:"user_id"`
	VerificationType CitizenVerificationType   `db:"verification_type" json:"verification_type"`
	Status           CitizenVerificationStatus `db:"status" json:"status"`
	ImageURLs        pq.StringArray            `db:"image_urls" json:"image_urls,omitempty"`
	Notes            string                    `db:"notes" json:"notes"`
	LocationVerified bool                      `db:"location_verified" json:"location_verified"`
	Latitude         *float64                  `db:"latitude" json:"latitude,omitempty"`
	Longitude        *float64                  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt        time.Time                 `db:"created_at" json:"created_at"`
}
