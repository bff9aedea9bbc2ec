package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

// InteractionRepository persists upvotes and comments, keeping the
// denormalized counters on the issue row in step.
type InteractionRepository struct {
	db *sqlx.DB
}

// NewInteractionRepository constructs the repository.
func NewInteractionRepository(db *sqlx.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// ToggleUpvote adds the user's upvote if absent and removes it if present.
// Returns the resulting state and the fresh count. The counter update runs in
// the same transaction as the vote row.
func (r *InteractionRepository) ToggleUpvote(ctx context.Context, issueID, userID string) (upvoted bool, count int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin toggle upvote: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var existingID string
	const findQuery = `SELECT id FROM upvotes WHERE issue_id = $1 AND user_id = $2`
	err = tx.GetContext(ctx, &existingID, findQuery, issueID, userID)
	switch {
	case err == nil:
		if _, err = tx.ExecContext(ctx, `DELETE FROM upvotes WHERE id = $1`, existingID); err != nil {
			return false, 0, fmt.Errorf("remove upvote: %w", err)
		}
		upvoted = false
	case errors.Is(err, sql.ErrNoRows):
		const insertQuery = `INSERT INTO upvotes (id, issue_id, user_id, created_at) VALUES ($1, $2, $3, $4)`
		if _, err = tx.ExecContext(ctx, insertQuery, uuid.NewString(), issueID, userID, now); err != nil {
			return false, 0, fmt.Errorf("insert upvote: %w", err)
		}
		upvoted = true
	default:
		return false, 0, fmt.Errorf("find upvote: %w", err)
	}

	const countQuery = `UPDATE issues
	SET upvote_count = (SELECT COUNT(*) FROM upvotes WHERE issue_id = $1), updated_at = $2
	WHERE id = $1
	RETURNING upvote_count`
	if err = tx.GetContext(ctx, &count, countQuery, issueID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, sql.ErrNoRows
		}
		return false, 0, fmt.Errorf("refresh upvote count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit toggle upvote: %w", err)
	}
	return upvoted, count, nil
}

// AddComment inserts the comment, bumps the issue counter, and appends the
// timeline event in one transaction.
func (r *InteractionRepository) AddComment(ctx context.Context, comment *models.Comment, event *models.TimelineEvent) (err error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add comment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO comments (id, issue_id, user_id, body, created_at)
	VALUES (:id, :issue_id, :user_id, :body, :created_at)`
	if _, err = tx.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	const countQuery = `UPDATE issues SET comment_count = comment_count + 1, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, countQuery, comment.IssueID, time.Now().UTC()); err != nil {
		return fmt.Errorf("bump comment count: %w", err)
	}

	if event != nil {
		event.IssueID = comment.IssueID
		if err = insertTimelineEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit add comment: %w", err)
	}
	return nil
}

// ListComments returns a page of comments, oldest first.
func (r *InteractionRepository) ListComments(ctx context.Context, issueID string, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT id, issue_id, user_id, body, created_at FROM comments
	WHERE issue_id = $1 ORDER BY created_at ASC LIMIT %d OFFSET %d`, limit, offset)
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, issueID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes the author's own comment and decrements the counter.
func (r *InteractionRepository) DeleteComment(ctx context.Context, commentID, userID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete comment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var issueID string
	const query = `DELETE FROM comments WHERE id = $1 AND user_id = $2 RETURNING issue_id`
	if err = tx.GetContext(ctx, &issueID, query, commentID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("delete comment: %w", err)
	}

	const countQuery = `UPDATE issues SET comment_count = GREATEST(comment_count - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, countQuery, issueID, time.Now().UTC()); err != nil {
		return fmt.Errorf("decrement comment count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete comment: %w", err)
	}
	return nil
}

// HasUpvoted reports whether the user currently upvotes the issue.
func (r *InteractionRepository) HasUpvoted(ctx context.Context, issueID, userID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM upvotes WHERE issue_id = $1 AND user_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, issueID, userID); err != nil {
		return false, fmt.Errorf("check upvote: %w", err)
	}
	return exists, nil
}
