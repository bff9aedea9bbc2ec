package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

// GovernmentActionRepository persists the append-only department action log.
type GovernmentActionRepository struct {
	db *sqlx.DB
}

// NewGovernmentActionRepository constructs the repository.
func NewGovernmentActionRepository(db *sqlx.DB) *GovernmentActionRepository {
	return &GovernmentActionRepository{db: db}
}

// Record inserts the action and its timeline event in one transaction.
func (r *GovernmentActionRepository) Record(ctx context.Context, action *models.GovernmentAction, event *models.TimelineEvent) (err error) {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record action: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO government_actions
	(id, issue_id, action_type, department, assignee_id, notes, image_urls, metadata, created_at)
	VALUES (:id, :issue_id, :action_type, :department, :assignee_id, :notes, :image_urls, :metadata, :created_at)`
	if _, err = tx.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("insert government action: %w", err)
	}

	if event != nil {
		event.IssueID = action.IssueID
		if err = insertTimelineEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record action: %w", err)
	}
	return nil
}

// ListByIssue returns the issue's actions, oldest first.
func (r *GovernmentActionRepository) ListByIssue(ctx context.Context, issueID string) ([]models.GovernmentAction, error) {
	const query = `SELECT id, issue_id, action_type, department, assignee_id, notes, image_urls, metadata, created_at
	FROM government_actions WHERE issue_id = $1 ORDER BY created_at ASC`
	var actions []models.GovernmentAction
	if err := r.db.SelectContext(ctx, &actions, query, issueID); err != nil {
		return nil, fmt.Errorf("list government actions: %w", err)
	}
	return actions, nil
}
