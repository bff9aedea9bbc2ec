package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/storage"
)

type issueStore interface {
	Create(ctx context.Context, issue *models.Issue, event *models.TimelineEvent) error
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
}

type timelineStore interface {
	ListByIssue(ctx context.Context, issueID string) ([]models.TimelineEvent, error)
}

// IssueService handles report intake and reads. Status changes live in
// LifecycleService; this service never touches issue.status after creation.
type IssueService struct {
	issues       issueStore
	timeline     timelineStore
	cache        *CacheService
	signer       *storage.MediaURLSigner
	validator    *validator.Validate
	maxMediaURLs int
	logger       *zap.Logger
}

// NewIssueService constructs the service.
func NewIssueService(issues issueStore, timeline timelineStore, cache *CacheService, signer *storage.MediaURLSigner, validate *validator.Validate, maxMediaURLs int, logger *zap.Logger) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMediaURLs <= 0 {
		maxMediaURLs = 5
	}
	return &IssueService{
		issues:       issues,
		timeline:     timeline,
		cache:        cache,
		signer:       signer,
		validator:    validate,
		maxMediaURLs: maxMediaURLs,
		logger:       logger,
	}
}

// Create registers a new report in OPEN with verification pending.
func (s *IssueService) Create(ctx context.Context, auth *models.AuthContext, req dto.CreateIssueRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	if !validCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown category")
	}
	if len(req.MediaURLs) > s.maxMediaURLs {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("at most %d media references per issue", s.maxMediaURLs))
	}

	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	issue := &models.Issue{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      models.IssueStatusOpen,
		Priority:    priority,
		Severity:    severity,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
		CreatedBy:   auth.UserID,
		MediaURLs:   req.MediaURLs,

		AIVerificationStatus:      models.VerificationCachePending,
		CitizenVerificationStatus: models.VerificationCachePending,
		EscalationStatus:          models.IssueEscalationNone,
	}
	event := &models.TimelineEvent{
		EventType:   models.EventIssueCreated,
		ActorType:   models.ActorCitizen,
		ActorID:     &auth.UserID,
		Description: fmt.Sprintf("Issue reported: %s", req.Title),
		ImageURLs:   req.MediaURLs,
	}
	if err := s.issues.Create(ctx, issue, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "issues:list:*")
		_ = s.cache.Invalidate(ctx, "analytics:*")
	}
	s.logger.Info("issue created",
		zap.String("issue_id", issue.ID),
		zap.String("category", issue.Category),
		zap.String("created_by", auth.UserID))
	return issue, nil
}

// Get returns the issue with its full timeline, read through the cache.
func (s *IssueService) Get(ctx context.Context, id string) (*dto.IssueDetail, error) {
	cacheKey := "issues:detail:" + id
	if s.cache != nil {
		var cached dto.IssueDetail
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	timeline, err := s.timeline.ListByIssue(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeline")
	}

	detail := &dto.IssueDetail{Issue: issue, Timeline: timeline}
	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, detail, 2*time.Minute)
	}
	return detail, nil
}

// List returns a page of issues matching the query.
func (s *IssueService) List(ctx context.Context, query dto.IssueQuery) ([]models.Issue, *models.Pagination, error) {
	filter := models.IssueFilter{
		Status:    models.IssueStatus(query.Status),
		Category:  query.Category,
		Severity:  models.IssueSeverity(query.Severity),
		CreatedBy: query.CreatedBy,
		Latitude:  query.Latitude,
		Longitude: query.Longitude,
		RadiusKM:  query.RadiusKM,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	issues, total, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return issues, pagination, nil
}

// Timeline returns the ordered event history for an issue.
func (s *IssueService) Timeline(ctx context.Context, issueID string) ([]models.TimelineEvent, error) {
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	events, err := s.timeline.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeline")
	}
	return events, nil
}

// MediaToken returns a time-bounded token granting access to one media object
// attached to the issue.
func (s *IssueService) MediaToken(ctx context.Context, issueID, objectKey string) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "media signing not configured")
	}
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	token, expiresAt, err := s.signer.Generate(issueID, objectKey)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign media url")
	}
	return token, expiresAt, nil
}

// Categories returns the fixed report category list.
func (s *IssueService) Categories() []string {
	return models.Categories
}

func validCategory(category string) bool {
	for _, c := range models.Categories {
		if c == category {
			return true
		}
	}
	return false
}
