package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

// ErrStaleStatus reports that a locked issue row no longer carries the status
// the caller validated against. The service maps it to a retryable conflict.
var ErrStaleStatus = errors.New("issue status changed concurrently")

const issueColumns = `id, title, description, category, status, priority, severity,
       latitude, longitude, address, created_by, media_urls,
       assigned_department, assigned_to,
       ai_verification_status, citizen_verification_status, escalation_status, trust_score,
       upvote_count, comment_count, created_at, updated_at, resolution_date`

// IssueRepository persists issues and owns the transition transaction.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts the issue and its creation timeline event in one transaction.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue, event *models.TimelineEvent) (err error) {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = issue.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create issue: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO issues
	(id, title, description, category, status, priority, severity,
	 latitude, longitude, address, created_by, media_urls,
	 ai_verification_status, citizen_verification_status, escalation_status, trust_score,
	 upvote_count, comment_count, created_at, updated_at)
	VALUES (:id, :title, :description, :category, :status, :priority, :severity,
	 :latitude, :longitude, :address, :created_by, :media_urls,
	 :ai_verification_status, :citizen_verification_status, :escalation_status, :trust_score,
	 :upvote_count, :comment_count, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	if event != nil {
		event.IssueID = issue.ID
		if err = insertTimelineEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create issue: %w", err)
	}
	return nil
}

// GetByID fetches an issue by identifier.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	query := fmt.Sprintf("SELECT %s FROM issues WHERE id = $1", issueColumns)
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// List returns issues matching the filter plus the total count for pagination.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 8)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Latitude != nil && filter.Longitude != nil {
		radius := filter.RadiusKM
		if radius <= 0 {
			radius = 10
		}
		// Approximate bounding box: 1 degree of latitude is roughly 111 km.
		latRange := radius / 111.0
		lngRange := radius / 111.0
		args = append(args, *filter.Latitude-latRange, *filter.Latitude+latRange)
		conditions = append(conditions, fmt.Sprintf("latitude BETWEEN $%d AND $%d", len(args)-1, len(args)))
		args = append(args, *filter.Longitude-lngRange, *filter.Longitude+lngRange)
		conditions = append(conditions, fmt.Sprintf("longitude BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM issues"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := fmt.Sprintf("SELECT %s FROM issues%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		issueColumns, where, pageSize, (page-1)*pageSize)

	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	return issues, total, nil
}

// TransitionParams groups inputs for a status transition.
type TransitionParams struct {
	IssueID         string
	ExpectedStatus  models.IssueStatus
	NewStatus       models.IssueStatus
	SetResolution   bool
	ClearResolution bool
	Event           *models.TimelineEvent
}

// TransitionStatus applies a validated status change under a row lock.
// The issue row is locked for the duration of the transaction; if the locked
// status differs from ExpectedStatus the caller lost a race and gets
// ErrStaleStatus. Exactly one timeline event is appended on success.
func (r *IssueRepository) TransitionStatus(ctx context.Context, params TransitionParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.IssueStatus
	const lockQuery = `SELECT status FROM issues WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.IssueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock issue row: %w", err)
	}
	if current != params.ExpectedStatus {
		err = ErrStaleStatus
		return err
	}

	now := time.Now().UTC()
	set := []string{"status = $2", "updated_at = $3"}
	args := []interface{}{params.IssueID, params.NewStatus, now}
	if params.SetResolution {
		args = append(args, now)
		set = append(set, fmt.Sprintf("resolution_date = $%d", len(args)))
	} else if params.ClearResolution {
		set = append(set, "resolution_date = NULL")
	}
	updateQuery := fmt.Sprintf("UPDATE issues SET %s WHERE id = $1", strings.Join(set, ", "))
	if _, err = tx.ExecContext(ctx, updateQuery, args...); err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}

	if params.Event != nil {
		params.Event.IssueID = params.IssueID
		if params.Event.CreatedAt.IsZero() {
			params.Event.CreatedAt = now
		}
		if err = insertTimelineEventTx(ctx, tx, params.Event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// SetAssignment records the department/assignee used for notification fan-out.
func (r *IssueRepository) SetAssignment(ctx context.Context, issueID, department string, assigneeID *string) error {
	const query = `UPDATE issues SET assigned_department = $2, assigned_to = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, issueID, department, assigneeID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set issue assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assignment rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func insertTimelineEventTx(ctx context.Context, tx *sqlx.Tx, event *models.TimelineEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timeline_events
	(id, issue_id, event_type, actor_type, actor_id, description, metadata, image_urls, created_at)
	VALUES (:id, :issue_id, :event_type, :actor_type, :actor_id, :description, :metadata, :image_urls, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}
