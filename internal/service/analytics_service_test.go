package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
)

type mockAnalyticsStore struct {
	statuses   []models.StatusCount
	categories []models.CategoryCount
	escalated  int
	avgTrust   float64
	points     []models.HeatmapPoint
	filters    []models.HeatmapFilter
}

func (m *mockAnalyticsStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return m.statuses, nil
}

func (m *mockAnalyticsStore) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	return m.categories, nil
}

func (m *mockAnalyticsStore) CountEscalated(ctx context.Context) (int, error) {
	return m.escalated, nil
}

func (m *mockAnalyticsStore) AverageTrust(ctx context.Context) (float64, error) {
	return m.avgTrust, nil
}

func (m *mockAnalyticsStore) Heatmap(ctx context.Context, filter models.HeatmapFilter) ([]models.HeatmapPoint, error) {
	m.filters = append(m.filters, filter)
	return m.points, nil
}

func TestSummaryComputesResolutionRate(t *testing.T) {
	store := &mockAnalyticsStore{
		statuses: []models.StatusCount{
			{Status: string(models.IssueStatusOpen), Count: 4},
			{Status: string(models.IssueStatusResolved), Count: 3},
			{Status: string(models.IssueStatusClosed), Count: 3},
		},
		categories: []models.CategoryCount{{Category: "POTHOLE", Count: 6}},
		escalated:  2,
		avgTrust:   0.55,
	}
	svc := NewAnalyticsService(store, nil, nil, 0, nil)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalIssues)
	assert.InDelta(t, 0.6, summary.ResolutionRate, 1e-9)
	assert.Equal(t, 6, summary.ByCategory["POTHOLE"])
	assert.Equal(t, 2, summary.EscalatedIssues)
	assert.InDelta(t, 0.55, summary.AverageTrust, 1e-9)
}

func TestHeatmapPassesFiltersThrough(t *testing.T) {
	store := &mockAnalyticsStore{points: []models.HeatmapPoint{
		{Latitude: 12.97, Longitude: 77.59, Severity: "HIGH", Status: "OPEN", Category: "POTHOLE", Weight: 1},
		{Latitude: 12.98, Longitude: 77.60, Severity: "LOW", Status: "OPEN", Category: "POTHOLE", Weight: 1},
	}}
	svc := NewAnalyticsService(store, nil, nil, 0, nil)

	heatmap, err := svc.Heatmap(context.Background(), dto.HeatmapQuery{
		Status:   "OPEN",
		Category: "POTHOLE",
		Days:     30,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, heatmap.TotalPoints)
	assert.Len(t, heatmap.Points, 2)

	require.Len(t, store.filters, 1)
	assert.Equal(t, models.HeatmapFilter{Status: "OPEN", Category: "POTHOLE", Days: 30}, store.filters[0])
}
