package models

import "time"

// AnalyticsSummary aggregates platform-wide issue statistics.
type AnalyticsSummary struct {
	TotalIssues      int            `json:"total_issues"`
	ByStatus         map[string]int `json:"by_status"`
	ByCategory       map[string]int `json:"by_category"`
	EscalatedIssues  int            `json:"escalated_issues"`
	ResolutionRate   float64        `json:"resolution_rate"`
	AverageTrust     float64        `json:"average_trust"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot of runtime counters for the
// analytics surface, complementing the Prometheus scrape endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// HeatmapPoint is one issue location feeding map visualizations.
type HeatmapPoint struct {
	Latitude  float64 `db:"latitude" json:"lat"`
	Longitude float64 `db:"longitude" json:"lng"`
	Severity  string  `db:"severity" json:"severity"`
	Status    string  `db:"status" json:"status"`
	Category  string  `db:"category" json:"category"`
	Weight    int     `db:"weight" json:"weight"`
}

// Heatmap bundles the points with their count.
type Heatmap struct {
	Points      []HeatmapPoint `json:"heatmap_data"`
	TotalPoints int            `json:"total_points"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// HeatmapFilter narrows which issues feed the heatmap.
type HeatmapFilter struct {
	Status   string
	Category string
	Days     int
}

// StatusCount is one row of a grouped status aggregate.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

// CategoryCount is one row of a grouped category aggregate.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int    `db:"count" json:"count"`
}
