package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
)

const (
	defaultMaxRecords         = 1000
	defaultRetentionWindow    = 24 * time.Hour
	defaultAlertRetention     = 7 * 24 * time.Hour
	defaultMaxSystemSnapshots = 288

	hourlyWindow = time.Hour

	// Success-rate alerts need a minimum sample so a single failure in an
	// otherwise idle hour cannot trip the floor.
	successRateMinSample = 10
)

// Config carries the alert thresholds and retention bounds for a Store.
// Zero values fall back to defaults at construction.
type Config struct {
	MaxLatencyMS     float64
	MinSuccessRate   float64
	MaxCostPerHour   float64
	MaxTokensPerHour int
	MaxErrorsPerHour int

	MaxRecords         int
	RetentionWindow    time.Duration
	AlertRetention     time.Duration
	MaxSystemSnapshots int
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxLatencyMS:       30000,
		MinSuccessRate:     0.9,
		MaxCostPerHour:     5.0,
		MaxTokensPerHour:   500000,
		MaxErrorsPerHour:   10,
		MaxRecords:         defaultMaxRecords,
		RetentionWindow:    defaultRetentionWindow,
		AlertRetention:     defaultAlertRetention,
		MaxSystemSnapshots: defaultMaxSystemSnapshots,
	}
}

// AlertNotifier receives freshly raised alerts for immediate fan-out to
// live-stream subscribers. It is invoked outside the store lock.
type AlertNotifier func(alerts []domain.Alert)

// Store is the single source of truth for ingested telemetry. It owns the
// in-memory record, snapshot, and alert collections, prunes them on every
// ingestion, and evaluates alert thresholds.
type Store struct {
	cfg     Config
	logger  *slog.Logger
	pricing *priceTable
	now     func() time.Time

	mu        sync.RWMutex
	records   []domain.MetricRecord
	snapshots []domain.SystemSnapshot
	alerts    []*domain.Alert

	notifyMu sync.RWMutex
	notify   AlertNotifier
}

// NewStore constructs a store with the given thresholds.
func NewStore(cfg Config, logger *slog.Logger) *Store {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = defaultRetentionWindow
	}
	if cfg.AlertRetention <= 0 {
		cfg.AlertRetention = defaultAlertRetention
	}
	if cfg.MaxSystemSnapshots <= 0 {
		cfg.MaxSystemSnapshots = defaultMaxSystemSnapshots
	}
	if logger != nil {
		logger = logger.With("component", "metrics_store")
	}
	return &Store{
		cfg:     cfg,
		logger:  logger,
		pricing: newPriceTable(logger),
		now:     time.Now,
	}
}

// SetAlertNotifier installs the immediate alert fan-out hook.
func (s *Store) SetAlertNotifier(fn AlertNotifier) {
	s.notifyMu.Lock()
	s.notify = fn
	s.notifyMu.Unlock()
}

// EstimateCost exposes the per-model price lookup.
func (s *Store) EstimateCost(model string, tokens int) float64 {
	return s.pricing.EstimateCost(model, tokens)
}

// Ingest appends a record, prunes stale and excess data, and evaluates the
// alert thresholds against the record and the current hourly window.
// Missing optional fields are treated as absent, never as errors.
func (s *Store) Ingest(record domain.MetricRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := s.now()
	if record.Timestamp.IsZero() {
		record.Timestamp = now.UTC()
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.prune(now)
	raised := s.evaluateThresholds(record, now)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("metric ingested",
			"record_id", record.ID,
			"endpoint", record.Endpoint,
			"latency_ms", record.LatencyMS,
			"success", record.Success,
		)
	}
	if len(raised) > 0 {
		s.notifyMu.RLock()
		notify := s.notify
		s.notifyMu.RUnlock()
		if notify != nil {
			notify(raised)
		}
	}
}

// IngestSystem retains a process health snapshot.
func (s *Store) IngestSystem(snapshot domain.SystemSnapshot) {
	now := s.now()
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = now.UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	cutoff := now.Add(-s.cfg.RetentionWindow)
	s.snapshots = trimSnapshots(s.snapshots, cutoff, s.cfg.MaxSystemSnapshots)
}

// ResolveAlert flips the matching alert to resolved. It reports whether a
// transition happened and never errors on an unknown id, since resolution
// requests may race with eviction.
func (s *Store) ResolveAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alert := range s.alerts {
		if alert.ID == id {
			if alert.Resolved {
				return false
			}
			alert.Resolved = true
			return true
		}
	}
	return false
}

// ResolveAll resolves every active alert and returns the count resolved.
func (s *Store) ResolveAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := 0
	for _, alert := range s.alerts {
		if !alert.Resolved {
			alert.Resolved = true
			resolved++
		}
	}
	return resolved
}

// ActiveAlerts returns unresolved alerts, most recent first, capped at 20.
func (s *Store) ActiveAlerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeAlertsLocked()
}

func (s *Store) activeAlertsLocked() []domain.Alert {
	const maxActive = 20
	active := make([]domain.Alert, 0, maxActive)
	for i := len(s.alerts) - 1; i >= 0 && len(active) < maxActive; i-- {
		if !s.alerts[i].Resolved {
			active = append(active, *s.alerts[i])
		}
	}
	return active
}

// RecordCount reports how many records are currently retained.
func (s *Store) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// prune enforces the retention bounds. Caller holds the write lock.
func (s *Store) prune(now time.Time) {
	cutoff := now.Add(-s.cfg.RetentionWindow)
	kept := s.records[:0]
	for _, record := range s.records {
		if !record.Timestamp.Before(cutoff) {
			kept = append(kept, record)
		}
	}
	if excess := len(kept) - s.cfg.MaxRecords; excess > 0 {
		kept = kept[excess:]
	}
	s.records = kept

	alertCutoff := now.Add(-s.cfg.AlertRetention)
	keptAlerts := s.alerts[:0]
	for _, alert := range s.alerts {
		if alert.Resolved && alert.Timestamp.Before(alertCutoff) {
			continue
		}
		keptAlerts = append(keptAlerts, alert)
	}
	s.alerts = keptAlerts
}

// evaluateThresholds checks the just-ingested record and the rolling hourly
// window. Caller holds the write lock. Returns copies of any raised alerts.
func (s *Store) evaluateThresholds(record domain.MetricRecord, now time.Time) []domain.Alert {
	var raised []domain.Alert

	add := func(kind domain.AlertType, title, message string, metadata map[string]string) {
		alert := &domain.Alert{
			ID:        uuid.NewString(),
			Type:      kind,
			Title:     title,
			Message:   message,
			Timestamp: now.UTC(),
			Metadata:  metadata,
		}
		s.alerts = append(s.alerts, alert)
		raised = append(raised, *alert)
		if s.logger != nil {
			s.logger.Warn("alert raised", "alert_id", alert.ID, "type", kind, "title", title, "message", message)
		}
	}

	if s.cfg.MaxLatencyMS > 0 && record.LatencyMS > s.cfg.MaxLatencyMS {
		add(domain.AlertWarning, "Slow request",
			fmt.Sprintf("%s took %.0fms (limit %.0fms)", record.Endpoint, record.LatencyMS, s.cfg.MaxLatencyMS),
			map[string]string{"record_id": record.ID, "endpoint": record.Endpoint})
	}

	if !record.Success {
		add(domain.AlertError, "Request failed", record.ErrorMessage,
			map[string]string{"record_id": record.ID, "endpoint": record.Endpoint})
	}

	var (
		hourCost    float64
		hourTokens  int
		hourErrors  int
		hourCount   int
		hourSuccess int
	)
	windowStart := now.Add(-hourlyWindow)
	for _, r := range s.records {
		if r.Timestamp.Before(windowStart) {
			continue
		}
		hourCount++
		hourCost += r.EstimatedCost
		hourTokens += r.TokensUsed
		if r.Success {
			hourSuccess++
		} else {
			hourErrors++
		}
	}

	if s.cfg.MaxCostPerHour > 0 && hourCost > s.cfg.MaxCostPerHour {
		add(domain.AlertWarning, "Hourly cost threshold exceeded",
			fmt.Sprintf("$%.4f spent in the last hour (limit $%.2f)", hourCost, s.cfg.MaxCostPerHour),
			map[string]string{"record_id": record.ID, "hourly_cost": fmt.Sprintf("%.4f", hourCost)})
	}
	if s.cfg.MaxTokensPerHour > 0 && hourTokens > s.cfg.MaxTokensPerHour {
		add(domain.AlertWarning, "Hourly token threshold exceeded",
			fmt.Sprintf("%d tokens used in the last hour (limit %d)", hourTokens, s.cfg.MaxTokensPerHour),
			map[string]string{"record_id": record.ID})
	}
	if s.cfg.MaxErrorsPerHour > 0 && hourErrors > s.cfg.MaxErrorsPerHour {
		add(domain.AlertError, "Hourly error threshold exceeded",
			fmt.Sprintf("%d failures in the last hour (limit %d)", hourErrors, s.cfg.MaxErrorsPerHour),
			map[string]string{"record_id": record.ID})
	}
	if s.cfg.MinSuccessRate > 0 && hourCount >= successRateMinSample {
		rate := float64(hourSuccess) / float64(hourCount)
		if rate < s.cfg.MinSuccessRate {
			add(domain.AlertWarning, "Success rate below threshold",
				fmt.Sprintf("%.1f%% of the last %d requests succeeded (floor %.1f%%)", rate*100, hourCount, s.cfg.MinSuccessRate*100),
				map[string]string{"record_id": record.ID})
		}
	}

	return raised
}

func trimSnapshots(snapshots []domain.SystemSnapshot, cutoff time.Time, max int) []domain.SystemSnapshot {
	kept := snapshots[:0]
	for _, snap := range snapshots {
		if !snap.Timestamp.Before(cutoff) {
			kept = append(kept, snap)
		}
	}
	if excess := len(kept) - max; excess > 0 {
		kept = kept[excess:]
	}
	return kept
}
