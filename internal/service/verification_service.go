package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	"github.com/civicfix/civicfix-api/internal/repository"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

// Trust score weights. AI confidence and citizen agreement dominate; physical
// presence at the site adds a fixed bonus. The score always lands in [0, 1].
const (
	trustWeightAI       = 0.4
	trustWeightCitizens = 0.4
	trustWeightLocation = 0.2

	// locationToleranceMeters bounds how far a verifier may stand from the
	// reported coordinates and still count as on-site.
	locationToleranceMeters = 100.0

	earthRadiusMeters = 6371000.0
)

type verificationStore interface {
	RecordAI(ctx context.Context, v *models.AIVerification, cache repository.IssueCacheUpdate, event *models.TimelineEvent) error
	RecordCitizen(ctx context.Context, v *models.CitizenVerification, cache repository.IssueCacheUpdate, event *models.TimelineEvent) error
	AggregatesForIssue(ctx context.Context, issueID string) (repository.VerificationAggregates, error)
	CountNotVerifiedSince(ctx context.Context, issueID string, since time.Time) (int, error)
	ListCitizenByIssue(ctx context.Context, issueID string, limit int) ([]models.CitizenVerification, error)
}

type disputeReopener interface {
	ReopenForDispute(ctx context.Context, issue *models.Issue, actorID, verificationID string) error
}

type disputeEvaluator interface {
	EvaluateOnDispute(ctx context.Context, issue *models.Issue, verificationID string) error
	EvaluateOnNonVerification(ctx context.Context, issue *models.Issue, notVerifiedCount int) error
}

// VerificationService records AI passes and citizen attestations, keeping the
// issue's denormalized verification fields and trust score current.
type VerificationService struct {
	verifications verificationStore
	issues        issueGetter
	lifecycle     disputeReopener
	escalations   disputeEvaluator
	notifier      notifier
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewVerificationService constructs the service.
func NewVerificationService(verifications verificationStore, issues issueGetter, lifecycle disputeReopener, escalations disputeEvaluator, notifier notifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *VerificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		verifications: verifications,
		issues:        issues,
		lifecycle:     lifecycle,
		escalations:   escalations,
		notifier:      notifier,
		cache:         cache,
		validator:     validate,
		logger:        logger,
	}
}

// RecordAI stores one AI verification pass and refreshes the issue's trust
// score from the new confidence value.
func (s *VerificationService) RecordAI(ctx context.Context, issueID string, req dto.RecordAIVerificationRequest) (*models.AIVerification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	issue, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	agg, err := s.verifications.AggregatesForIssue(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate verifications")
	}
	trust := computeTrustScore(req.Confidence, true,
		agg.CitizenTotal, agg.CitizenVerified, agg.LocationVerified > 0)

	v := &models.AIVerification{
		IssueID:          issueID,
		VerificationType: req.VerificationType,
		Status:           req.Status,
		Confidence:       req.Confidence,
		RejectionReasons: req.RejectionReasons,
		ChecksPerformed:  req.ChecksPerformed,
	}

	eventType := models.EventAIVerificationCompleted
	if req.Status == models.AIStatusRejected {
		eventType = models.EventIssueRejected
	}
	metadata, _ := json.Marshal(map[string]interface{}{
		"status":     req.Status,
		"confidence": req.Confidence,
	})
	event := &models.TimelineEvent{
		EventType:   eventType,
		ActorType:   models.ActorAI,
		Description: fmt.Sprintf("AI verification %s with confidence %.2f", req.Status, req.Confidence),
		Metadata:    metadata,
	}

	cacheStatus := models.VerificationCacheStatus(req.Status)
	cache := repository.IssueCacheUpdate{AIStatus: &cacheStatus, TrustScore: &trust}
	if err := s.verifications.RecordAI(ctx, v, cache, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record verification")
	}
	s.invalidateIssue(ctx, issueID)

	if s.notifier != nil {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  issue.CreatedBy,
			IssueID: &issue.ID,
			Type:    models.NotifyVerificationRecorded,
			Title:   "AI verification completed",
			Message: fmt.Sprintf("Issue %q was %s by automated verification.", issue.Title, req.Status),
		})
	}
	return v, nil
}

// RecordCitizen stores one citizen attestation. Disputes reopen a closed
// issue and feed the escalation criteria; repeated non-verification since the
// claimed resolution does the same.
func (s *VerificationService) RecordCitizen(ctx context.Context, issueID string, auth *models.AuthContext, req dto.RecordCitizenVerificationRequest) (*models.CitizenVerification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	issue, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	// Creators may dispute or progress-check their own issue; only the final
	// sign-off demands an independent citizen.
	if req.VerificationType == models.CitizenVerificationFinal && issue.CreatedBy == auth.UserID {
		return nil, appErrors.Clone(appErrors.ErrSelfVerification, "")
	}

	locationVerified := false
	if req.Latitude != nil && req.Longitude != nil {
		distance := haversineMeters(issue.Latitude, issue.Longitude, *req.Latitude, *req.Longitude)
		locationVerified = distance <= locationToleranceMeters
	}

	agg, err := s.verifications.AggregatesForIssue(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate verifications")
	}
	total := agg.CitizenTotal + 1
	verified := agg.CitizenVerified
	if req.Status == models.CitizenStatusVerified {
		verified++
	}
	anyLocation := agg.LocationVerified > 0 || locationVerified
	trust := computeTrustScore(agg.LatestAIConfidence.Float64, agg.LatestAIConfidence.Valid,
		total, verified, anyLocation)

	v := &models.CitizenVerification{
		IssueID:          issueID,
		UserID:           auth.UserID,
		VerificationType: req.VerificationType,
		Status:           req.Status,
		ImageURLs:        req.ImageURLs,
		Notes:            req.Notes,
		LocationVerified: locationVerified,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"status":            req.Status,
		"location_verified": locationVerified,
	})
	event := &models.TimelineEvent{
		EventType:   models.EventCitizenVerificationCompleted,
		ActorType:   models.ActorCitizen,
		ActorID:     &auth.UserID,
		Description: fmt.Sprintf("Citizen reported work as %s", req.Status),
		Metadata:    metadata,
		ImageURLs:   req.ImageURLs,
	}

	cacheStatus := models.VerificationCacheStatus(req.Status)
	cache := repository.IssueCacheUpdate{CitizenStatus: &cacheStatus, TrustScore: &trust}
	if err := s.verifications.RecordCitizen(ctx, v, cache, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record verification")
	}
	s.invalidateIssue(ctx, issueID)

	if s.notifier != nil {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  issue.CreatedBy,
			IssueID: &issue.ID,
			Type:    models.NotifyVerificationRecorded,
			Title:   "Citizen verification recorded",
			Message: fmt.Sprintf("A citizen reported work on issue %q as %s.", issue.Title, req.Status),
		})
	}

	s.evaluateAfterCitizenWrite(ctx, issue, v)
	return v, nil
}

// ListCitizen returns citizen attestations for an issue, newest first.
func (s *VerificationService) ListCitizen(ctx context.Context, issueID string, limit int) ([]models.CitizenVerification, error) {
	rows, err := s.verifications.ListCitizenByIssue(ctx, issueID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list verifications")
	}
	return rows, nil
}

func (s *VerificationService) evaluateAfterCitizenWrite(ctx context.Context, stale *models.Issue, v *models.CitizenVerification) {
	issue, err := s.issues.GetByID(ctx, stale.ID)
	if err != nil {
		s.logger.Warn("failed to reload issue after verification", zap.String("issue_id", stale.ID), zap.Error(err))
		issue = stale
	}

	switch v.Status {
	case models.CitizenStatusDisputed:
		if issue.Status == models.IssueStatusClosed && s.lifecycle != nil {
			if err := s.lifecycle.ReopenForDispute(ctx, issue, v.UserID, v.ID); err != nil {
				s.logger.Warn("failed to reopen disputed issue", zap.String("issue_id", issue.ID), zap.Error(err))
			}
		}
		if s.escalations != nil {
			if err := s.escalations.EvaluateOnDispute(ctx, issue, v.ID); err != nil {
				s.logger.Warn("dispute escalation failed", zap.String("issue_id", issue.ID), zap.Error(err))
			}
		}
	case models.CitizenStatusNotVerified:
		if issue.ResolutionDate == nil || s.escalations == nil {
			return
		}
		count, err := s.verifications.CountNotVerifiedSince(ctx, issue.ID, *issue.ResolutionDate)
		if err != nil {
			s.logger.Warn("failed to count non-verifications", zap.String("issue_id", issue.ID), zap.Error(err))
			return
		}
		if err := s.escalations.EvaluateOnNonVerification(ctx, issue, count); err != nil {
			s.logger.Warn("non-verification escalation failed", zap.String("issue_id", issue.ID), zap.Error(err))
		}
	}
}

func (s *VerificationService) loadIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return issue, nil
}

func (s *VerificationService) invalidateIssue(ctx context.Context, issueID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "issues:detail:"+issueID)
	_ = s.cache.Invalidate(ctx, "analytics:*")
}

// computeTrustScore combines the latest AI confidence, the share of positive
// citizen attestations, and an on-site presence bonus. With no signal at all
// the score is zero; it never leaves [0, 1].
func computeTrustScore(aiConfidence float64, hasAI bool, citizenTotal, citizenVerified int, anyLocationVerified bool) float64 {
	score := 0.0
	if hasAI {
		score += trustWeightAI * clamp01(aiConfidence)
	}
	if citizenTotal > 0 {
		score += trustWeightCitizens * (float64(citizenVerified) / float64(citizenTotal))
	}
	if anyLocationVerified {
		score += trustWeightLocation
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// haversineMeters returns the great-circle distance between two coordinates.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
