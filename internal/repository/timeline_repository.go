package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

// TimelineRepository reads and appends immutable timeline events. There is
// deliberately no update or delete path.
type TimelineRepository struct {
	db *sqlx.DB
}

// NewTimelineRepository constructs the repository.
func NewTimelineRepository(db *sqlx.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Append inserts one event outside any surrounding transaction.
func (r *TimelineRepository) Append(ctx context.Context, event *models.TimelineEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timeline_events
	(id, issue_id, event_type, actor_type, actor_id, description, metadata, image_urls, created_at)
	VALUES (:id, :issue_id, :event_type, :actor_type, :actor_id, :description, :metadata, :image_urls, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// ListByIssue returns the issue's full history in insertion order.
func (r *TimelineRepository) ListByIssue(ctx context.Context, issueID string) ([]models.TimelineEvent, error) {
	const query = `SELECT id, issue_id, event_type, actor_type, actor_id, description, metadata, image_urls, created_at
	FROM timeline_events WHERE issue_id = $1 ORDER BY created_at ASC, seq ASC`
	var events []models.TimelineEvent
	if err := r.db.SelectContext(ctx, &events, query, issueID); err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	return events, nil
}

// CountByIssue returns how many events an issue has accumulated.
func (r *TimelineRepository) CountByIssue(ctx context.Context, issueID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM timeline_events WHERE issue_id = $1`, issueID); err != nil {
		return 0, fmt.Errorf("count timeline events: %w", err)
	}
	return count, nil
}
