package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	"github.com/civicfix/civicfix-api/internal/repository"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

type escalationStore interface {
	Create(ctx context.Context, escalation *models.Escalation, event *models.TimelineEvent) error
	GetByID(ctx context.Context, id string) (*models.Escalation, error)
	FindActiveByIssue(ctx context.Context, issueID string) (*models.Escalation, error)
	List(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
}

type issueGetter interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
}

type notifier interface {
	Notify(ctx context.Context, entry models.NotificationQueueEntry)
}

// escalationTransitions is the escalation workflow, keyed by current status.
var escalationTransitions = map[models.EscalationStatus][]models.EscalationStatus{
	models.EscalationPending:  {models.EscalationApproved, models.EscalationRejected},
	models.EscalationApproved: {models.EscalationFiled},
	models.EscalationFiled:    {models.EscalationResolved},
}

// EscalationService evaluates escalation criteria and runs the review
// workflow. Evaluation is idempotent: an issue with a live escalation is
// never escalated again, whatever new criteria fire.
type EscalationService struct {
	escalations escalationStore
	issues      issueGetter
	notifier    notifier
	metrics     *MetricsService
	logger      *zap.Logger

	nonVerifiedThreshold int
	lowTrustThreshold    float64
}

// NewEscalationService constructs the service.
func NewEscalationService(escalations escalationStore, issues issueGetter, notifier notifier, metrics *MetricsService, nonVerifiedThreshold int, lowTrustThreshold float64, logger *zap.Logger) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if nonVerifiedThreshold <= 0 {
		nonVerifiedThreshold = 3
	}
	if lowTrustThreshold <= 0 {
		lowTrustThreshold = 0.3
	}
	return &EscalationService{
		escalations:          escalations,
		issues:               issues,
		notifier:             notifier,
		metrics:              metrics,
		logger:               logger,
		nonVerifiedThreshold: nonVerifiedThreshold,
		lowTrustThreshold:    lowTrustThreshold,
	}
}

// EvaluateOnDispute escalates a disputed resolution. Highest-priority
// criterion: it fires when a citizen disputes work the issue already claims
// as done, so the issue must have reached RESOLVED or CLOSED. Callers pass
// the status as it stood before any dispute reopen.
func (s *EscalationService) EvaluateOnDispute(ctx context.Context, issue *models.Issue, verificationID string) error {
	if issue.Status != models.IssueStatusResolved && issue.Status != models.IssueStatusClosed {
		return nil
	}
	evidence := models.EvidenceBundle{
		CitizenVerificationIDs: []string{verificationID},
		TrustScore:             issue.TrustScore,
	}
	return s.trigger(ctx, issue, models.TriggerDisputedResolution, evidence)
}

// EvaluateOnNonVerification escalates when citizens have repeatedly failed to
// confirm claimed work since the latest resolution.
func (s *EscalationService) EvaluateOnNonVerification(ctx context.Context, issue *models.Issue, notVerifiedCount int) error {
	if notVerifiedCount < s.nonVerifiedThreshold {
		return nil
	}
	evidence := models.EvidenceBundle{TrustScore: issue.TrustScore}
	return s.trigger(ctx, issue, models.TriggerRepeatedNonVerification, evidence)
}

// EvaluateOnResolution escalates a resolution claimed while the issue's trust
// score sits below the configured floor.
func (s *EscalationService) EvaluateOnResolution(ctx context.Context, issue *models.Issue) error {
	if issue.TrustScore >= s.lowTrustThreshold {
		return nil
	}
	evidence := models.EvidenceBundle{TrustScore: issue.TrustScore}
	return s.trigger(ctx, issue, models.TriggerLowTrustResolution, evidence)
}

func (s *EscalationService) trigger(ctx context.Context, issue *models.Issue, reason string, evidence models.EvidenceBundle) error {
	active, err := s.escalations.FindActiveByIssue(ctx, issue.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active escalation")
	}
	if active != nil {
		return nil
	}

	payload, err := json.Marshal(evidence)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode escalation evidence")
	}

	escalation := &models.Escalation{
		IssueID:       issue.ID,
		TriggerReason: reason,
		Evidence:      payload,
		Status:        models.EscalationPending,
	}
	metadata, _ := json.Marshal(map[string]string{"trigger_reason": reason})
	event := &models.TimelineEvent{
		EventType:   models.EventEscalationTriggered,
		ActorType:   models.ActorSystem,
		Description: fmt.Sprintf("Issue escalated: %s", reason),
		Metadata:    metadata,
	}
	if err := s.escalations.Create(ctx, escalation, event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create escalation")
	}

	s.metrics.ObserveEscalation(reason)
	s.logger.Info("escalation created",
		zap.String("issue_id", issue.ID),
		zap.String("escalation_id", escalation.ID),
		zap.String("trigger_reason", reason))

	if s.notifier != nil {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  issue.CreatedBy,
			IssueID: &issue.ID,
			Type:    models.NotifyEscalationCreated,
			Title:   "Your issue has been escalated",
			Message: fmt.Sprintf("Issue %q was escalated for administrator review.", issue.Title),
		})
	}
	return nil
}

// Review applies an administrator decision to an escalation.
func (s *EscalationService) Review(ctx context.Context, id, adminID string, req dto.ReviewEscalationRequest) (*models.Escalation, error) {
	escalation, err := s.escalations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "escalation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load escalation")
	}

	if !escalationTransitionAllowed(escalation.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidEscalationTransition,
			fmt.Sprintf("cannot move escalation from %s to %s", escalation.Status, req.Status))
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	err = s.escalations.UpdateStatus(ctx, repository.UpdateStatusParams{
		ID:             id,
		ExpectedStatus: escalation.Status,
		NewStatus:      req.Status,
		AdminID:        adminID,
		Notes:          notes,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "escalation was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update escalation")
	}

	updated, err := s.escalations.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload escalation")
	}

	if s.notifier != nil && s.issues != nil {
		if issue, issueErr := s.issues.GetByID(ctx, escalation.IssueID); issueErr == nil {
			s.notifier.Notify(ctx, models.NotificationQueueEntry{
				UserID:  issue.CreatedBy,
				IssueID: &issue.ID,
				Type:    models.NotifyEscalationReviewed,
				Title:   "Escalation reviewed",
				Message: fmt.Sprintf("The escalation for issue %q is now %s.", issue.Title, updated.Status),
			})
		}
	}
	return updated, nil
}

// Get returns an escalation by identifier.
func (s *EscalationService) Get(ctx context.Context, id string) (*models.Escalation, error) {
	escalation, err := s.escalations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "escalation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load escalation")
	}
	return escalation, nil
}

// List returns escalations matching the query.
func (s *EscalationService) List(ctx context.Context, query dto.EscalationQuery) ([]models.Escalation, error) {
	filter := models.EscalationFilter{
		Status:  models.EscalationStatus(query.Status),
		IssueID: query.IssueID,
		Limit:   query.Limit,
		Offset:  query.Offset,
	}
	escalations, err := s.escalations.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list escalations")
	}
	return escalations, nil
}

func escalationTransitionAllowed(from, to models.EscalationStatus) bool {
	for _, allowed := range escalationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
