package domain

import "time"

// TodayStats aggregates all records since the start of the local day.
// SuccessRate is a fraction in [0, 1].
type TodayStats struct {
	Count        int     `json:"count"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	TotalCost    float64 `json:"total_cost"`
	TotalTokens  int     `json:"total_tokens"`
}

// HourlyBucket aggregates the last 24h of records by calendar hour of day.
// Two records 20 hours apart share a bucket if both fell in the same hour.
type HourlyBucket struct {
	Hour         int     `json:"hour"`
	Count        int     `json:"count"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	TotalCost    float64 `json:"total_cost"`
}

// ModelUsage summarizes today's records for one model.
type ModelUsage struct {
	Model       string  `json:"model"`
	Count       int     `json:"count"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	Percent     float64 `json:"percent"`
}

// EndpointStats summarizes all retained records for one endpoint.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	Count        int     `json:"count"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	TotalCost    float64 `json:"total_cost"`
}

// RAGStats covers today's records that carry retrieval telemetry.
// Rates are percentages in [0, 100].
type RAGStats struct {
	UtilizationRate       float64 `json:"utilization_rate"`
	AvgSearchesPerRequest float64 `json:"avg_searches_per_request"`
	AvgSourcesFound       float64 `json:"avg_sources_found"`
	URLVerificationRate   float64 `json:"url_verification_rate"`
}

// ErrorEntry is a failed record reduced for display.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
	Message   string    `json:"message"`
	UserInput string    `json:"user_input,omitempty"`
}

// DashboardSnapshot is the full aggregate view computed on demand over the
// currently retained records.
type DashboardSnapshot struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	Today        TodayStats      `json:"today"`
	Hourly       []HourlyBucket  `json:"hourly"`
	Models       []ModelUsage    `json:"models"`
	Endpoints    []EndpointStats `json:"endpoints"`
	RAG          RAGStats        `json:"rag"`
	RecentErrors []ErrorEntry    `json:"recent_errors"`
	ActiveAlerts []Alert         `json:"active_alerts"`
	System       *SystemSnapshot `json:"system,omitempty"`
}
