package dto

// HeatmapQuery mirrors supported heatmap filters.
type HeatmapQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	Days     int    `form:"days"`
}
