package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

type analyticsStore interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByCategory(ctx context.Context) ([]models.CategoryCount, error)
	CountEscalated(ctx context.Context) (int, error)
	AverageTrust(ctx context.Context) (float64, error)
	Heatmap(ctx context.Context, filter models.HeatmapFilter) ([]models.HeatmapPoint, error)
}

const (
	analyticsSummaryKey = "analytics:summary"
	analyticsHeatmapKey = "analytics:heatmap"
)

// AnalyticsService serves the aggregate dashboard, cached in Redis.
type AnalyticsService struct {
	store   analyticsStore
	cache   *CacheService
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(store analyticsStore, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *AnalyticsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{store: store, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

// Summary returns platform-wide aggregates, served from cache when fresh.
func (s *AnalyticsService) Summary(ctx context.Context) (*models.AnalyticsSummary, error) {
	if s.cache != nil {
		var cached models.AnalyticsSummary
		if hit, _ := s.cache.Get(ctx, analyticsSummaryKey, &cached); hit {
			return &cached, nil
		}
	}

	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate by status")
	}
	byCategory, err := s.store.CountByCategory(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate by category")
	}
	escalated, err := s.store.CountEscalated(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count escalations")
	}
	avgTrust, err := s.store.AverageTrust(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to average trust")
	}

	summary := &models.AnalyticsSummary{
		ByStatus:        make(map[string]int, len(byStatus)),
		ByCategory:      make(map[string]int, len(byCategory)),
		EscalatedIssues: escalated,
		AverageTrust:    avgTrust,
		GeneratedAt:     time.Now().UTC(),
	}
	for _, row := range byStatus {
		summary.ByStatus[row.Status] = row.Count
		summary.TotalIssues += row.Count
	}
	for _, row := range byCategory {
		summary.ByCategory[row.Category] = row.Count
	}
	if summary.TotalIssues > 0 {
		done := summary.ByStatus[string(models.IssueStatusResolved)] + summary.ByStatus[string(models.IssueStatusClosed)]
		summary.ResolutionRate = float64(done) / float64(summary.TotalIssues)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, analyticsSummaryKey, summary, s.ttl)
	}
	return summary, nil
}

// Heatmap returns issue locations for map visualizations, served from cache
// when the same filter combination was asked for recently.
func (s *AnalyticsService) Heatmap(ctx context.Context, query dto.HeatmapQuery) (*models.Heatmap, error) {
	key := fmt.Sprintf("%s:%s:%s:%d", analyticsHeatmapKey, query.Status, query.Category, query.Days)
	if s.cache != nil {
		var cached models.Heatmap
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	points, err := s.store.Heatmap(ctx, models.HeatmapFilter{
		Status:   query.Status,
		Category: query.Category,
		Days:     query.Days,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load heatmap")
	}

	heatmap := &models.Heatmap{
		Points:      points,
		TotalPoints: len(points),
		GeneratedAt: time.Now().UTC(),
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, heatmap, s.ttl)
	}
	return heatmap, nil
}

// SystemMetrics snapshots runtime counters for the dashboard.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}
