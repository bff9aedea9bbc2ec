package dto

import (
	"encoding/json"

	"github.com/civicfix/civicfix-api/internal/models"
)

// RecordAIVerificationRequest is submitted by the AI verification service.
type RecordAIVerificationRequest struct {
	VerificationType models.AIVerificationType   `json:"verification_type" validate:"required"`
	Status           models.AIVerificationStatus `json:"status" validate:"required"`
	Confidence       float64                     `json:"confidence" validate:"gte=0,lte=1"`
	RejectionReasons []string                    `json:"rejection_reasons"`
	ChecksPerformed  json.RawMessage             `json:"checks_performed"`
}

// RecordCitizenVerificationRequest captures a citizen attestation.
type RecordCitizenVerificationRequest struct {
	VerificationType models.CitizenVerificationType   `json:"verification_type" validate:"required"`
	Status           models.CitizenVerificationStatus `json:"status" validate:"required"`
	ImageURLs        []string                         `json:"image_urls"`
	Notes            string                           `json:"notes"`
	Latitude         *float64                         `json:"latitude"`
	Longitude        *float64                         `json:"longitude"`
}
