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

type issueTransitioner interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	TransitionStatus(ctx context.Context, params repository.TransitionParams) error
	SetAssignment(ctx context.Context, issueID, department string, assigneeID *string) error
}

type actionStore interface {
	Record(ctx context.Context, action *models.GovernmentAction, event *models.TimelineEvent) error
	ListByIssue(ctx context.Context, issueID string) ([]models.GovernmentAction, error)
}

type resolutionEvaluator interface {
	EvaluateOnResolution(ctx context.Context, issue *models.Issue) error
}

// transitionRule describes one permitted status edge.
type transitionRule struct {
	role          models.UserRole
	eventType     string
	setResolution bool
}

// issueTransitions is the lifecycle, keyed by current then requested status.
// CLOSED has no outgoing edge here: reopening happens only through a citizen
// dispute, never a direct status update.
var issueTransitions = map[models.IssueStatus]map[models.IssueStatus]transitionRule{
	models.IssueStatusOpen: {
		models.IssueStatusInProgress: {role: models.RoleGovernment, eventType: models.EventWorkStarted},
	},
	models.IssueStatusInProgress: {
		models.IssueStatusResolved: {role: models.RoleGovernment, eventType: models.EventWorkCompleted, setResolution: true},
	},
	models.IssueStatusResolved: {
		models.IssueStatusClosed: {role: models.RoleCitizen, eventType: models.EventIssueClosed},
	},
}

// actionEvents maps department actions to their timeline event types.
var actionEvents = map[models.GovernmentActionType]string{
	models.ActionAssigned:  models.EventGovernmentAssigned,
	models.ActionStarted:   models.EventWorkStarted,
	models.ActionUpdated:   models.EventProgressUpdate,
	models.ActionCompleted: models.EventWorkCompleted,
	models.ActionRejected:  models.EventIssueRejected,
}

// LifecycleService owns issue status transitions and the department action
// log. All status writes funnel through Transition or ReopenForDispute, so the
// transition table is the single source of truth for what moves are legal.
type LifecycleService struct {
	issues      issueTransitioner
	actions     actionStore
	notifier    notifier
	escalations resolutionEvaluator
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(issues issueTransitioner, actions actionStore, notifier notifier, escalations resolutionEvaluator, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		issues:      issues,
		actions:     actions,
		notifier:    notifier,
		escalations: escalations,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
	}
}

// Transition applies a requested status change on behalf of an actor.
func (s *LifecycleService) Transition(ctx context.Context, issueID string, auth *models.AuthContext, req dto.UpdateStatusRequest) (*models.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}

	rule, ok := issueTransitions[issue.Status][req.Status]
	if !ok {
		if issue.Status == models.IssueStatusClosed && req.Status == models.IssueStatusOpen {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "closed issues reopen only through a dispute")
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move issue from %s to %s", issue.Status, req.Status))
	}
	if auth.Role != rule.role {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor,
			fmt.Sprintf("transition %s to %s requires the %s role", issue.Status, req.Status, rule.role))
	}

	metadata, _ := json.Marshal(map[string]string{
		"from":  string(issue.Status),
		"to":    string(req.Status),
		"notes": req.Notes,
	})
	event := &models.TimelineEvent{
		EventType:   rule.eventType,
		ActorType:   actorTypeForRole(auth.Role),
		ActorID:     &auth.UserID,
		Description: fmt.Sprintf("Status changed from %s to %s", issue.Status, req.Status),
		Metadata:    metadata,
	}

	err = s.issues.TransitionStatus(ctx, repository.TransitionParams{
		IssueID:        issueID,
		ExpectedStatus: issue.Status,
		NewStatus:      req.Status,
		SetResolution:  rule.setResolution,
		Event:          event,
	})
	if err != nil {
		return nil, mapTransitionError(err)
	}
	s.invalidateIssue(ctx, issueID)

	updated, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload issue")
	}

	s.metrics.ObserveTransition(string(issue.Status), string(req.Status))
	s.logger.Info("issue transitioned",
		zap.String("issue_id", issueID),
		zap.String("from", string(issue.Status)),
		zap.String("to", string(req.Status)),
		zap.String("actor_id", auth.UserID))

	if s.notifier != nil && updated.CreatedBy != auth.UserID {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  updated.CreatedBy,
			IssueID: &updated.ID,
			Type:    models.NotifyStatusChanged,
			Title:   "Issue status updated",
			Message: fmt.Sprintf("Issue %q is now %s.", updated.Title, updated.Status),
		})
	}
	// Entering RESOLVED starts the citizen verification window, so the
	// assigned actor hears about it too.
	if s.notifier != nil && req.Status == models.IssueStatusResolved &&
		updated.AssignedTo != nil && *updated.AssignedTo != auth.UserID {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  *updated.AssignedTo,
			IssueID: &updated.ID,
			Type:    models.NotifyStatusChanged,
			Title:   "Assigned issue resolved",
			Message: fmt.Sprintf("Issue %q you are assigned to is now awaiting citizen verification.", updated.Title),
		})
	}

	if req.Status == models.IssueStatusResolved && s.escalations != nil {
		if evalErr := s.escalations.EvaluateOnResolution(ctx, updated); evalErr != nil {
			s.logger.Warn("escalation evaluation failed", zap.String("issue_id", issueID), zap.Error(evalErr))
		}
	}
	return updated, nil
}

// ReopenForDispute moves a closed issue back to OPEN after a citizen dispute.
// This is the only path out of CLOSED.
func (s *LifecycleService) ReopenForDispute(ctx context.Context, issue *models.Issue, actorID, verificationID string) error {
	metadata, _ := json.Marshal(map[string]string{"citizen_verification_id": verificationID})
	event := &models.TimelineEvent{
		EventType:   models.EventIssueDisputed,
		ActorType:   models.ActorCitizen,
		ActorID:     &actorID,
		Description: "Resolution disputed, issue reopened",
		Metadata:    metadata,
	}
	err := s.issues.TransitionStatus(ctx, repository.TransitionParams{
		IssueID:         issue.ID,
		ExpectedStatus:  models.IssueStatusClosed,
		NewStatus:       models.IssueStatusOpen,
		ClearResolution: true,
		Event:           event,
	})
	if err != nil {
		return mapTransitionError(err)
	}
	s.invalidateIssue(ctx, issue.ID)

	if s.notifier != nil {
		if issue.CreatedBy != actorID {
			s.notifier.Notify(ctx, models.NotificationQueueEntry{
				UserID:  issue.CreatedBy,
				IssueID: &issue.ID,
				Type:    models.NotifyStatusChanged,
				Title:   "Issue reopened",
				Message: fmt.Sprintf("Issue %q was reopened after a citizen disputed its resolution.", issue.Title),
			})
		}
		if issue.AssignedTo != nil && *issue.AssignedTo != actorID {
			s.notifier.Notify(ctx, models.NotificationQueueEntry{
				UserID:  *issue.AssignedTo,
				IssueID: &issue.ID,
				Type:    models.NotifyStatusChanged,
				Title:   "Resolution disputed",
				Message: fmt.Sprintf("A citizen disputed the resolution of issue %q; it is open again.", issue.Title),
			})
		}
	}
	return nil
}

// RecordAction appends a department action. An ASSIGNED action also pins the
// owning department on the issue for notification fan-out.
func (s *LifecycleService) RecordAction(ctx context.Context, issueID string, auth *models.AuthContext, req dto.RecordActionRequest) (*models.GovernmentAction, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}

	eventType, ok := actionEvents[req.ActionType]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown action type")
	}

	var assigneeID *string
	if req.AssigneeID != "" {
		assigneeID = &req.AssigneeID
	}
	action := &models.GovernmentAction{
		IssueID:    issueID,
		ActionType: req.ActionType,
		Department: req.Department,
		AssigneeID: assigneeID,
		Notes:      req.Notes,
		ImageURLs:  req.ImageURLs,
		Metadata:   req.Metadata,
	}
	event := &models.TimelineEvent{
		EventType:   eventType,
		ActorType:   models.ActorGovernment,
		ActorID:     &auth.UserID,
		Description: fmt.Sprintf("%s action by %s", req.ActionType, req.Department),
		ImageURLs:   req.ImageURLs,
	}
	if err := s.actions.Record(ctx, action, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record action")
	}

	if req.ActionType == models.ActionAssigned {
		if err := s.issues.SetAssignment(ctx, issueID, req.Department, assigneeID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to set assignment", zap.String("issue_id", issueID), zap.Error(err))
		}
	}
	s.invalidateIssue(ctx, issueID)

	if s.notifier != nil && issue.CreatedBy != auth.UserID {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  issue.CreatedBy,
			IssueID: &issue.ID,
			Type:    models.NotifyStatusChanged,
			Title:   "Work update on your issue",
			Message: fmt.Sprintf("%s recorded a %s update on issue %q.", req.Department, req.ActionType, issue.Title),
		})
	}
	return action, nil
}

// ListActions returns the department action log for an issue.
func (s *LifecycleService) ListActions(ctx context.Context, issueID string) ([]models.GovernmentAction, error) {
	actions, err := s.actions.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list actions")
	}
	return actions, nil
}

func (s *LifecycleService) invalidateIssue(ctx context.Context, issueID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "issues:detail:"+issueID)
	_ = s.cache.Invalidate(ctx, "issues:list:*")
	_ = s.cache.Invalidate(ctx, "analytics:*")
}

func actorTypeForRole(role models.UserRole) models.ActorType {
	switch role {
	case models.RoleGovernment:
		return models.ActorGovernment
	case models.RoleAdmin:
		return models.ActorSystem
	default:
		return models.ActorCitizen
	}
}

func mapTransitionError(err error) error {
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return appErrors.Clone(appErrors.ErrConcurrentModification, "")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "issue not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue status")
	}
}
