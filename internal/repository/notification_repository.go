package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

const notificationColumns = `id, user_id, issue_id, type, title, message, data, status, sent_at, read_at, created_at`

// NotificationRepository persists notification queue entries.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Enqueue inserts one PENDING entry.
func (r *NotificationRepository) Enqueue(ctx context.Context, entry *models.NotificationQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.NotificationPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_queue
	(id, user_id, issue_id, type, title, message, data, status, created_at)
	VALUES (:id, :user_id, :issue_id, :type, :title, :message, :data, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ListPending returns the oldest PENDING entries up to limit.
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]models.NotificationQueueEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM notification_queue WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT %d",
		notificationColumns, limit)
	var entries []models.NotificationQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return entries, nil
}

// ListByUser returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.NotificationQueueEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM notification_queue WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d",
		notificationColumns, limit)
	var entries []models.NotificationQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return entries, nil
}

// MarkSent flips a PENDING entry to SENT.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	return r.markDelivery(ctx, id, models.NotificationSent)
}

// MarkFailed flips a PENDING entry to FAILED.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markDelivery(ctx, id, models.NotificationFailed)
}

func (r *NotificationRepository) markDelivery(ctx context.Context, id string, status models.NotificationStatus) error {
	const query = `UPDATE notification_queue SET status = $2, sent_at = $3 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification %s: %w", status, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkRead records the recipient acknowledging a delivered entry.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notification_queue SET status = 'READ', read_at = $3
	WHERE id = $1 AND user_id = $2 AND status IN ('PENDING', 'SENT')`
	result, err := r.db.ExecContext(ctx, query, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
