package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/models"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
	"github.com/civicfix/civicfix-api/pkg/jobs"
)

type notificationStore interface {
	Enqueue(ctx context.Context, entry *models.NotificationQueueEntry) error
	ListPending(ctx context.Context, limit int) ([]models.NotificationQueueEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.NotificationQueueEntry, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id, userID string) error
}

// Sender delivers one notification to its channel (push, email, webhook).
type Sender interface {
	Send(ctx context.Context, entry models.NotificationQueueEntry) error
}

// LogSender is the default delivery channel: it only logs. Real channels plug
// in behind the Sender interface.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, entry models.NotificationQueueEntry) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification delivered",
		zap.String("id", entry.ID),
		zap.String("user_id", entry.UserID),
		zap.String("type", entry.Type))
	return nil
}

// NotificationService queues user-facing notifications and serves the inbox
// endpoints. Enqueue failures are logged, never propagated: a missed
// notification must not fail the workflow write that produced it.
type NotificationService struct {
	store  notificationStore
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(store notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, logger: logger}
}

// Notify buffers one notification for the delivery worker.
func (s *NotificationService) Notify(ctx context.Context, entry models.NotificationQueueEntry) {
	if entry.UserID == "" {
		return
	}
	if err := s.store.Enqueue(ctx, &entry); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("user_id", entry.UserID),
			zap.String("type", entry.Type),
			zap.Error(err))
	}
}

// ListForUser returns the caller's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.NotificationQueueEntry, error) {
	entries, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return entries, nil
}

// MarkRead acknowledges a delivered notification for its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// NotificationDispatcher polls PENDING queue rows and hands them to a worker
// pool for delivery. Each entry is marked SENT or FAILED exactly once; the
// in-flight set keeps a slow delivery from being re-enqueued by the next poll.
type NotificationDispatcher struct {
	store        notificationStore
	sender       Sender
	queue        *jobs.Queue
	pollInterval time.Duration
	batchSize    int
	logger       *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// DispatcherConfig configures the delivery worker.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	MaxRetries   int
}

// NewNotificationDispatcher constructs the dispatcher.
func NewNotificationDispatcher(store notificationStore, sender Sender, cfg DispatcherConfig, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	d := &NotificationDispatcher{
		store:        store,
		sender:       sender,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		logger:       logger,
		inFlight:     make(map[string]struct{}),
	}
	d.queue = jobs.NewQueue("notifications", d.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return d
}

// Start launches the worker pool and the polling loop.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
	go d.poll(ctx)
}

// Stop drains the worker pool.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

func (d *NotificationDispatcher) poll(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainPending(ctx)
		}
	}
}

func (d *NotificationDispatcher) drainPending(ctx context.Context) {
	entries, err := d.store.ListPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Warn("failed to poll notification queue", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if !d.claim(entry.ID) {
			continue
		}
		if err := d.queue.Enqueue(jobs.Job{ID: entry.ID, Type: entry.Type, Payload: entry}); err != nil {
			d.release(entry.ID)
			d.logger.Warn("failed to enqueue delivery job", zap.String("id", entry.ID), zap.Error(err))
		}
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.NotificationQueueEntry)
	if !ok {
		d.release(job.ID)
		return nil
	}
	defer d.release(entry.ID)

	if err := d.sender.Send(ctx, entry); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("id", entry.ID),
			zap.String("type", entry.Type),
			zap.Error(err))
		if markErr := d.store.MarkFailed(ctx, entry.ID); markErr != nil && !errors.Is(markErr, sql.ErrNoRows) {
			d.logger.Warn("failed to mark notification failed", zap.String("id", entry.ID), zap.Error(markErr))
		}
		return nil
	}

	if err := d.store.MarkSent(ctx, entry.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		d.logger.Warn("failed to mark notification sent", zap.String("id", entry.ID), zap.Error(err))
	}
	return nil
}

func (d *NotificationDispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inFlight[id]; exists {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *NotificationDispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}
