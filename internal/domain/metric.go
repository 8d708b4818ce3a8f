package domain

import "time"

// MetricRecord captures the telemetry of one completed pipeline request.
// Records are immutable once ingested; there is no update path.
type MetricRecord struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Endpoint      string    `json:"endpoint"`
	LatencyMS     float64   `json:"latency_ms"`
	Success       bool      `json:"success"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	TokensUsed    int       `json:"tokens_used"`
	ModelUsed     string    `json:"model_used,omitempty"`
	EstimatedCost float64   `json:"estimated_cost"`

	// Pipeline strategy labels, free-form and optional.
	Approach        string `json:"approach,omitempty"`
	StagesCompleted string `json:"stages_completed,omitempty"`

	// Retrieval counters. Presence (non-nil) marks the record as having
	// used retrieval, which feeds the RAG utilization statistics.
	RAGSearches  *int `json:"rag_searches,omitempty"`
	RAGSources   *int `json:"rag_sources,omitempty"`
	URLsVerified *int `json:"urls_verified,omitempty"`

	// Request context, truncated only at read time for display.
	UserInput       string `json:"user_input,omitempty"`
	FollowupAnswers string `json:"followup_answers,omitempty"`
	CardsGenerated  int    `json:"cards_generated,omitempty"`
}

// UsedRAG reports whether the record carries retrieval telemetry.
func (r MetricRecord) UsedRAG() bool {
	return r.RAGSearches != nil
}

// SystemSnapshot is a point-in-time view of process health.
type SystemSnapshot struct {
	Timestamp         time.Time       `json:"timestamp"`
	MemoryUsageMB     float64         `json:"memory_usage_mb"`
	ActiveConnections int             `json:"active_connections"`
	Services          map[string]bool `json:"services"`
}
