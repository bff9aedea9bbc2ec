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

const escalationColumns = `id, issue_id, trigger_reason, evidence, nearest_station, status,
       admin_notes, admin_id, created_at, updated_at`

// EscalationRepository persists escalation rows and the issue-side summary.
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository constructs the repository.
func NewEscalationRepository(db *sqlx.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Create inserts the escalation, flips the issue's escalation_status to
// ESCALATED, and appends the triggering timeline event in one transaction.
func (r *EscalationRepository) Create(ctx context.Context, escalation *models.Escalation, event *models.TimelineEvent) (err error) {
	if escalation.ID == "" {
		escalation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if escalation.CreatedAt.IsZero() {
		escalation.CreatedAt = now
	}
	escalation.UpdatedAt = escalation.CreatedAt
	if escalation.Status == "" {
		escalation.Status = models.EscalationPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create escalation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO escalations
	(id, issue_id, trigger_reason, evidence, nearest_station, status, admin_notes, admin_id, created_at, updated_at)
	VALUES (:id, :issue_id, :trigger_reason, :evidence, :nearest_station, :status, :admin_notes, :admin_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, escalation); err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}

	const issueQuery = `UPDATE issues SET escalation_status = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, issueQuery, escalation.IssueID, models.IssueEscalationEscalated, now); err != nil {
		return fmt.Errorf("update issue escalation status: %w", err)
	}

	if event != nil {
		event.IssueID = escalation.IssueID
		if err = insertTimelineEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create escalation: %w", err)
	}
	return nil
}

// GetByID fetches an escalation by identifier.
func (r *EscalationRepository) GetByID(ctx context.Context, id string) (*models.Escalation, error) {
	query := fmt.Sprintf("SELECT %s FROM escalations WHERE id = $1", escalationColumns)
	var escalation models.Escalation
	if err := r.db.GetContext(ctx, &escalation, query, id); err != nil {
		return nil, err
	}
	return &escalation, nil
}

// FindActiveByIssue returns the issue's non-terminal escalation, if any.
// FILED counts as terminal for creation purposes alongside REJECTED/RESOLVED.
func (r *EscalationRepository) FindActiveByIssue(ctx context.Context, issueID string) (*models.Escalation, error) {
	query := fmt.Sprintf(`SELECT %s FROM escalations
	WHERE issue_id = $1 AND status NOT IN ('FILED', 'REJECTED', 'RESOLVED')
	ORDER BY created_at DESC LIMIT 1`, escalationColumns)
	var escalation models.Escalation
	if err := r.db.GetContext(ctx, &escalation, query, issueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active escalation: %w", err)
	}
	return &escalation, nil
}

// List returns escalations matching the filter, newest first.
func (r *EscalationRepository) List(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.IssueID != "" {
		args = append(args, filter.IssueID)
		conditions = append(conditions, fmt.Sprintf("issue_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM escalations%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		escalationColumns, where, limit, offset)

	var escalations []models.Escalation
	if err := r.db.SelectContext(ctx, &escalations, query, args...); err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	return escalations, nil
}

// UpdateStatusParams groups the reviewer decision.
type UpdateStatusParams struct {
	ID             string
	ExpectedStatus models.EscalationStatus
	NewStatus      models.EscalationStatus
	AdminID        string
	Notes          *string
}

// UpdateStatus persists a reviewer decision guarded by the current status;
// a zero row count means the escalation moved on concurrently. Reaching
// RESOLVED also flips the issue-side escalation summary in the same
// transaction, without touching issue.status.
func (r *EscalationRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin escalation update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `UPDATE escalations
	SET status = $3, admin_id = $4, admin_notes = COALESCE($5, admin_notes), updated_at = $6
	WHERE id = $1 AND status = $2
	RETURNING issue_id`
	var issueID string
	if err = tx.GetContext(ctx, &issueID, query, params.ID, params.ExpectedStatus, params.NewStatus, params.AdminID, params.Notes, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update escalation status: %w", err)
	}

	if params.NewStatus == models.EscalationResolved {
		const issueQuery = `UPDATE issues SET escalation_status = $2, updated_at = $3 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, issueQuery, issueID, models.IssueEscalationResolved, now); err != nil {
			return fmt.Errorf("update issue escalation summary: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit escalation update: %w", err)
	}
	return nil
}
