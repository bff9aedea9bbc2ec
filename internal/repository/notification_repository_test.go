package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/models"
)

func TestEnqueueDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notification_queue").WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.NotificationQueueEntry{
		UserID:  "user-1",
		Type:    models.NotifyStatusChanged,
		Title:   "Issue status updated",
		Message: "Issue is now IN_PROGRESS.",
	}
	err := repo.Enqueue(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.NotificationPending, entry.Status)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "issue_id", "type", "title", "message", "data", "status", "sent_at", "read_at", "created_at",
	}).AddRow("n-1", "user-1", nil, models.NotifyStatusChanged, "t", "m", nil, "PENDING", nil, nil, now)
	mock.ExpectQuery("SELECT (.+) FROM notification_queue WHERE status = 'PENDING'").
		WillReturnRows(rows)

	entries, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.NotificationPending, entries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notification_queue SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notification_queue SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkSent(context.Background(), "n-1"))

	err := repo.MarkSent(context.Background(), "n-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadRequiresOwnership(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notification_queue SET status = 'READ'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "n-1", "someone-else")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
