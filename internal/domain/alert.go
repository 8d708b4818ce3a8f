package domain

import "time"

// AlertType grades the severity of a threshold violation.
type AlertType string

const (
	AlertInfo    AlertType = "info"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
)

// Alert records a detected threshold violation. The Resolved flag is the
// only field that may change after creation.
type Alert struct {
	ID        string            `json:"id"`
	Type      AlertType         `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Resolved  bool              `json:"resolved"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
