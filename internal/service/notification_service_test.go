package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/models"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/jobs"
)

type mockNotificationStore struct {
	mu         sync.Mutex
	enqueued   []models.NotificationQueueEntry
	enqueueErr error
	pending    []models.NotificationQueueEntry
	sent       []string
	failed     []string
	readErr    error
}

func (m *mockNotificationStore) Enqueue(ctx context.Context, entry *models.NotificationQueueEntry) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = "n-1"
	m.enqueued = append(m.enqueued, *entry)
	return nil
}

func (m *mockNotificationStore) ListPending(ctx context.Context, limit int) ([]models.NotificationQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *mockNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.NotificationQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueued, nil
}

func (m *mockNotificationStore) MarkSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockNotificationStore) MarkFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	return nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	return m.readErr
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingSender) Send(ctx context.Context, entry models.NotificationQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, entry.ID)
	return nil
}

func TestNotifySwallowsEnqueueFailure(t *testing.T) {
	store := &mockNotificationStore{enqueueErr: errors.New("db down")}
	svc := NewNotificationService(store, nil)

	// Must not panic or propagate.
	svc.Notify(context.Background(), models.NotificationQueueEntry{
		UserID: "user-1",
		Type:   models.NotifyStatusChanged,
	})
	assert.Empty(t, store.enqueued)
}

func TestNotifySkipsEmptyRecipient(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewNotificationService(store, nil)

	svc.Notify(context.Background(), models.NotificationQueueEntry{Type: models.NotifyStatusChanged})
	assert.Empty(t, store.enqueued)
}

func TestMarkReadUnknownNotification(t *testing.T) {
	store := &mockNotificationStore{readErr: sql.ErrNoRows}
	svc := NewNotificationService(store, nil)

	err := svc.MarkRead(context.Background(), "missing", "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDispatcherDeliversAndMarksSent(t *testing.T) {
	store := &mockNotificationStore{}
	sender := &recordingSender{}
	d := NewNotificationDispatcher(store, sender, DispatcherConfig{Workers: 1}, nil)

	err := d.deliver(context.Background(), jobs.Job{
		ID:      "n-1",
		Payload: models.NotificationQueueEntry{ID: "n-1", UserID: "user-1", Type: models.NotifyStatusChanged},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n-1"}, sender.sent)
	assert.Equal(t, []string{"n-1"}, store.sent)
	assert.Empty(t, store.failed)
}

func TestDispatcherMarksFailedWithoutRetry(t *testing.T) {
	store := &mockNotificationStore{}
	sender := &recordingSender{err: errors.New("smtp unreachable")}
	d := NewNotificationDispatcher(store, sender, DispatcherConfig{Workers: 1}, nil)

	// deliver returns nil on send failure so the job queue does not retry; the
	// row is marked FAILED instead.
	err := d.deliver(context.Background(), jobs.Job{
		ID:      "n-1",
		Payload: models.NotificationQueueEntry{ID: "n-1", UserID: "user-1", Type: models.NotifyStatusChanged},
	})
	require.NoError(t, err)
	assert.Empty(t, store.sent)
	assert.Equal(t, []string{"n-1"}, store.failed)
}

func TestDispatcherClaimPreventsDoubleEnqueue(t *testing.T) {
	d := NewNotificationDispatcher(&mockNotificationStore{}, &recordingSender{}, DispatcherConfig{}, nil)

	assert.True(t, d.claim("n-1"))
	assert.False(t, d.claim("n-1"))
	d.release("n-1")
	assert.True(t, d.claim("n-1"))
}
