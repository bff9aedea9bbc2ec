package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

type interactionStore interface {
	ToggleUpvote(ctx context.Context, issueID, userID string) (bool, int, error)
	AddComment(ctx context.Context, comment *models.Comment, event *models.TimelineEvent) error
	ListComments(ctx context.Context, issueID string, limit, offset int) ([]models.Comment, error)
	DeleteComment(ctx context.Context, commentID, userID string) error
	HasUpvoted(ctx context.Context, issueID, userID string) (bool, error)
}

// InteractionService handles upvotes and comments.
type InteractionService struct {
	store     interactionStore
	issues    issueGetter
	notifier  notifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInteractionService constructs the service.
func NewInteractionService(store interactionStore, issues issueGetter, notifier notifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *InteractionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionService{
		store:     store,
		issues:    issues,
		notifier:  notifier,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// ToggleUpvote flips the caller's upvote on an issue.
func (s *InteractionService) ToggleUpvote(ctx context.Context, issueID string, auth *models.AuthContext) (*dto.UpvoteResult, error) {
	upvoted, count, err := s.store.ToggleUpvote(ctx, issueID, auth.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle upvote")
	}
	s.invalidateIssue(ctx, issueID)
	return &dto.UpvoteResult{UpvoteCount: count, UserUpvoted: upvoted}, nil
}

// AddComment posts a comment on an issue.
func (s *InteractionService) AddComment(ctx context.Context, issueID string, auth *models.AuthContext, req dto.AddCommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}

	comment := &models.Comment{
		IssueID: issueID,
		UserID:  auth.UserID,
		Body:    req.Body,
	}
	event := &models.TimelineEvent{
		EventType:   models.EventCommentAdded,
		ActorType:   actorTypeForRole(auth.Role),
		ActorID:     &auth.UserID,
		Description: "Comment added",
	}
	if err := s.store.AddComment(ctx, comment, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add comment")
	}
	s.invalidateIssue(ctx, issueID)

	if s.notifier != nil && issue.CreatedBy != auth.UserID {
		s.notifier.Notify(ctx, models.NotificationQueueEntry{
			UserID:  issue.CreatedBy,
			IssueID: &issue.ID,
			Type:    models.NotifyCommentAdded,
			Title:   "New comment on your issue",
			Message: fmt.Sprintf("Someone commented on issue %q.", issue.Title),
		})
	}
	return comment, nil
}

// ListComments returns a page of comments, oldest first.
func (s *InteractionService) ListComments(ctx context.Context, issueID string, limit, offset int) ([]models.Comment, error) {
	comments, err := s.store.ListComments(ctx, issueID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// DeleteComment removes the caller's own comment.
func (s *InteractionService) DeleteComment(ctx context.Context, commentID string, auth *models.AuthContext) error {
	if err := s.store.DeleteComment(ctx, commentID, auth.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}

// HasUpvoted reports whether the caller currently upvotes the issue.
func (s *InteractionService) HasUpvoted(ctx context.Context, issueID string, auth *models.AuthContext) (bool, error) {
	upvoted, err := s.store.HasUpvoted(ctx, issueID, auth.UserID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check upvote")
	}
	return upvoted, nil
}

func (s *InteractionService) invalidateIssue(ctx context.Context, issueID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "issues:detail:"+issueID)
	_ = s.cache.Invalidate(ctx, "issues:list:*")
}
