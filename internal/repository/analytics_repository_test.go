package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/models"
)

func TestHeatmapUnfiltered(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"latitude", "longitude", "severity", "status", "category", "weight"}).
		AddRow(12.97, 77.59, "HIGH", "OPEN", "POTHOLE", 1).
		AddRow(12.98, 77.60, "LOW", "RESOLVED", "GARBAGE", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT latitude, longitude, severity, status, category, 1 AS weight FROM issues")).
		WillReturnRows(rows)

	points, err := repo.Heatmap(context.Background(), models.HeatmapFilter{})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "POTHOLE", points[0].Category)
	assert.Equal(t, 1, points[0].Weight)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHeatmapAppliesFilters(t *testing.T) {
	db, mock, closeFn := newMock(t)
	defer closeFn()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE status = $1 AND category = $2 AND created_at >= $3")).
		WithArgs("OPEN", "POTHOLE", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"latitude", "longitude", "severity", "status", "category", "weight"}))

	points, err := repo.Heatmap(context.Background(), models.HeatmapFilter{
		Status:   "OPEN",
		Category: "POTHOLE",
		Days:     7,
	})
	require.NoError(t, err)
	assert.Empty(t, points)
	require.NoError(t, mock.ExpectationsWereMet())
}
