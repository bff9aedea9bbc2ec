package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

// AnalyticsRepository runs the grouped aggregates behind the summary endpoint.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// CountByStatus returns issue counts grouped by status.
func (r *AnalyticsRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM issues GROUP BY status`
	var rows []models.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	return rows, nil
}

// CountByCategory returns issue counts grouped by category.
func (r *AnalyticsRepository) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	const query = `SELECT category, COUNT(*) AS count FROM issues GROUP BY category`
	var rows []models.CategoryCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	return rows, nil
}

// CountEscalated returns how many issues currently carry an ESCALATED summary.
func (r *AnalyticsRepository) CountEscalated(ctx context.Context) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM issues WHERE escalation_status = 'ESCALATED'`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count escalated: %w", err)
	}
	return count, nil
}

// Heatmap returns raw issue locations, optionally filtered by status,
// category, and report age in days. Every point carries a unit weight; the
// client scales by severity if it wants to.
func (r *AnalyticsRepository) Heatmap(ctx context.Context, filter models.HeatmapFilter) ([]models.HeatmapPoint, error) {
	query := `SELECT latitude, longitude, severity, status, category, 1 AS weight FROM issues`
	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Days > 0 {
		args = append(args, time.Now().UTC().AddDate(0, 0, -filter.Days))
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var rows []models.HeatmapPoint
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("heatmap: %w", err)
	}
	return rows, nil
}

// AverageTrust returns the mean trust score across issues that have one.
func (r *AnalyticsRepository) AverageTrust(ctx context.Context) (float64, error) {
	var avg float64
	const query = `SELECT COALESCE(AVG(trust_score), 0) FROM issues WHERE trust_score > 0`
	if err := r.db.GetContext(ctx, &avg, query); err != nil {
		return 0, fmt.Errorf("average trust: %w", err)
	}
	return avg, nil
}
