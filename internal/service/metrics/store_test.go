package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
)

var testBase = time.Date(2025, time.November, 5, 15, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	store := NewStore(cfg, nil)
	store.now = func() time.Time { return testBase }
	return store
}

func record(ts time.Time, success bool) domain.MetricRecord {
	r := domain.MetricRecord{
		Timestamp: ts,
		Endpoint:  "generate-cards",
		LatencyMS: 1200,
		Success:   success,
	}
	if !success {
		r.ErrorMessage = "upstream timeout"
	}
	return r
}

func TestIngestEnforcesRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRecords = 5
	store := newTestStore(t, cfg)

	// Older than the 24h window: dropped on the next ingestion.
	store.Ingest(record(testBase.Add(-25*time.Hour), true))
	store.Ingest(record(testBase.Add(-30*time.Hour), true))
	for i := 0; i < 8; i++ {
		store.Ingest(record(testBase.Add(-time.Duration(i)*time.Minute), true))
	}

	if got := store.RecordCount(); got != 5 {
		t.Fatalf("expected retention cap of 5 records, got %d", got)
	}
	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snapshot.Today.Count != 5 {
		t.Fatalf("expected 5 today records, got %d", snapshot.Today.Count)
	}
}

func TestTodaySuccessRate(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		store.Ingest(record(testBase.Add(-time.Duration(i)*time.Minute), true))
	}
	for i := 0; i < 2; i++ {
		store.Ingest(record(testBase.Add(-time.Duration(10+i)*time.Minute), false))
	}

	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snapshot.Today.Count != 5 {
		t.Fatalf("expected 5 records, got %d", snapshot.Today.Count)
	}
	if snapshot.Today.SuccessRate != 0.6 {
		t.Fatalf("expected success rate 0.6, got %v", snapshot.Today.SuccessRate)
	}
}

func TestEmptyStoreSnapshotIsZeroed(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snapshot.Today.Count != 0 || snapshot.Today.SuccessRate != 0 || snapshot.Today.AvgLatencyMS != 0 {
		t.Fatalf("expected zeroed today stats, got %+v", snapshot.Today)
	}
	if len(snapshot.Hourly) != 24 {
		t.Fatalf("expected 24 hourly buckets, got %d", len(snapshot.Hourly))
	}
	if snapshot.RAG.UtilizationRate != 0 || snapshot.RAG.URLVerificationRate != 0 {
		t.Fatalf("expected zeroed rag stats, got %+v", snapshot.RAG)
	}
}

func TestLatencyAlertBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLatencyMS = 1000
	store := newTestStore(t, cfg)

	at := record(testBase, true)
	at.LatencyMS = 1000
	store.Ingest(at)
	if got := len(store.ActiveAlerts()); got != 0 {
		t.Fatalf("latency at the limit should not alert, got %d alerts", got)
	}

	over := record(testBase, true)
	over.ID = "rec-over"
	over.LatencyMS = 1001
	store.Ingest(over)

	alerts := store.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.Type != domain.AlertWarning {
		t.Fatalf("expected warning alert, got %s", alert.Type)
	}
	if alert.Resolved {
		t.Fatalf("new alert should be unresolved")
	}
	if alert.Metadata["record_id"] != "rec-over" {
		t.Fatalf("alert should reference the triggering record, got %q", alert.Metadata["record_id"])
	}
}

func TestFailureRaisesErrorAlert(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	store.Ingest(record(testBase, false))

	alerts := store.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if alerts[0].Type != domain.AlertError {
		t.Fatalf("expected error alert, got %s", alerts[0].Type)
	}
	if alerts[0].Message != "upstream timeout" {
		t.Fatalf("expected failure message carried, got %q", alerts[0].Message)
	}
}

func TestHourlyCostAlert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCostPerHour = 0.01
	store := newTestStore(t, cfg)

	costly := record(testBase, true)
	costly.EstimatedCost = 0.02
	store.Ingest(costly)

	found := false
	for _, alert := range store.ActiveAlerts() {
		if strings.Contains(alert.Title, "cost") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an hourly cost alert, alerts: %+v", store.ActiveAlerts())
	}
}

func TestHourlyErrorAlert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxErrorsPerHour = 2
	store := newTestStore(t, cfg)

	for i := 0; i < 3; i++ {
		store.Ingest(record(testBase.Add(-time.Duration(i)*time.Minute), false))
	}
	found := false
	for _, alert := range store.ActiveAlerts() {
		if alert.Title == "Hourly error threshold exceeded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an hourly error alert")
	}
}

func TestResolveAlert(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	store.Ingest(record(testBase, false))

	alerts := store.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one active alert, got %d", len(alerts))
	}
	id := alerts[0].ID

	if !store.ResolveAlert(id) {
		t.Fatalf("expected resolution to report a transition")
	}
	if len(store.ActiveAlerts()) != 0 {
		t.Fatalf("resolved alert should leave the active list")
	}
	if store.ResolveAlert(id) {
		t.Fatalf("second resolution should be a no-op")
	}
	if store.ResolveAlert("no-such-id") {
		t.Fatalf("unknown id should be a no-op")
	}
}

func TestResolveAllCountsTransitions(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		store.Ingest(record(testBase.Add(-time.Duration(i)*time.Minute), false))
	}
	if got := store.ResolveAll(); got != 3 {
		t.Fatalf("expected 3 resolutions, got %d", got)
	}
	if got := store.ResolveAll(); got != 0 {
		t.Fatalf("expected idempotent resolve-all, got %d", got)
	}
}

func TestResolvedAlertsPurgedAfterRetention(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	store.Ingest(record(testBase.Add(-8*24*time.Hour), false))

	// The failure alert is stamped with ingestion time; age it manually.
	store.mu.Lock()
	for _, alert := range store.alerts {
		alert.Timestamp = testBase.Add(-8 * 24 * time.Hour)
		alert.Resolved = true
	}
	store.mu.Unlock()

	store.Ingest(record(testBase, true))
	store.mu.RLock()
	remaining := len(store.alerts)
	store.mu.RUnlock()
	if remaining != 0 {
		t.Fatalf("expected aged resolved alerts to be purged, %d remain", remaining)
	}
}

func TestHourlyBucketsKeyedByHourOfDay(t *testing.T) {
	store := newTestStore(t, DefaultConfig())

	first := record(time.Date(2025, time.November, 5, 14, 50, 0, 0, time.UTC), true)
	first.ModelUsed = "m1"
	second := record(time.Date(2025, time.November, 4, 14, 40, 0, 0, time.UTC), true)
	second.ModelUsed = "m1"
	store.Ingest(first)
	store.Ingest(second)

	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	bucket := snapshot.Hourly[14]
	if bucket.Hour != 14 {
		t.Fatalf("expected bucket index 14 to carry hour 14, got %d", bucket.Hour)
	}
	if bucket.Count != 2 {
		t.Fatalf("expected both records in hour-of-day 14, got %d", bucket.Count)
	}
}

func TestRAGStats(t *testing.T) {
	store := newTestStore(t, DefaultConfig())

	searches := []int{1, 2, 3}
	for i, n := range searches {
		r := record(testBase.Add(-time.Duration(i)*time.Minute), true)
		count := n
		sources := 4
		r.RAGSearches = &count
		r.RAGSources = &sources
		store.Ingest(r)
	}
	for i := 0; i < 7; i++ {
		store.Ingest(record(testBase.Add(-time.Duration(20+i)*time.Minute), true))
	}

	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snapshot.RAG.UtilizationRate != 30 {
		t.Fatalf("expected utilization 30, got %v", snapshot.RAG.UtilizationRate)
	}
	if snapshot.RAG.AvgSearchesPerRequest != 2 {
		t.Fatalf("expected avg searches 2, got %v", snapshot.RAG.AvgSearchesPerRequest)
	}
	if snapshot.RAG.AvgSourcesFound != 4 {
		t.Fatalf("expected avg sources 4, got %v", snapshot.RAG.AvgSourcesFound)
	}
}

func TestModelUsagePercent(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		r := record(testBase.Add(-time.Duration(i)*time.Minute), true)
		r.ModelUsed = "gpt-4o"
		r.TokensUsed = 100
		store.Ingest(r)
	}
	r := record(testBase.Add(-10*time.Minute), true)
	r.ModelUsed = "gpt-4o-mini"
	store.Ingest(r)

	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(snapshot.Models) != 2 {
		t.Fatalf("expected 2 model entries, got %d", len(snapshot.Models))
	}
	top := snapshot.Models[0]
	if top.Model != "gpt-4o" || top.Count != 3 || top.TotalTokens != 300 {
		t.Fatalf("unexpected top model entry %+v", top)
	}
	if top.Percent != 75 {
		t.Fatalf("expected 75%% share, got %v", top.Percent)
	}
}

func TestRecentErrorsTruncatesInput(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	r := record(testBase, false)
	r.UserInput = strings.Repeat("x", 150)
	store.Ingest(r)

	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(snapshot.RecentErrors) != 1 {
		t.Fatalf("expected one recent error, got %d", len(snapshot.RecentErrors))
	}
	if got := len(snapshot.RecentErrors[0].UserInput); got != 100 {
		t.Fatalf("expected input truncated to 100 chars, got %d", got)
	}
}

func TestActiveAlertsNewestFirstCapped(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	times := make([]time.Time, 0, 25)
	for i := 0; i < 25; i++ {
		ts := testBase.Add(-time.Duration(25-i) * time.Minute)
		times = append(times, ts)
		store.now = func() time.Time { return ts }
		store.Ingest(record(ts, false))
	}
	store.now = func() time.Time { return testBase }

	alerts := store.ActiveAlerts()
	if len(alerts) != 20 {
		t.Fatalf("expected active alerts capped at 20, got %d", len(alerts))
	}
	if !alerts[0].Timestamp.Equal(times[len(times)-1].UTC()) {
		t.Fatalf("expected newest alert first, got %v", alerts[0].Timestamp)
	}
}

func TestAlertNotifierReceivesRaisedAlerts(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	var notified []domain.Alert
	store.SetAlertNotifier(func(alerts []domain.Alert) {
		notified = append(notified, alerts...)
	})

	store.Ingest(record(testBase, false))
	if len(notified) != 1 {
		t.Fatalf("expected one notified alert, got %d", len(notified))
	}
	if notified[0].Type != domain.AlertError {
		t.Fatalf("expected error alert notified, got %s", notified[0].Type)
	}
}

func TestSystemSnapshotRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSystemSnapshots = 3
	store := newTestStore(t, cfg)

	for i := 0; i < 5; i++ {
		store.IngestSystem(domain.SystemSnapshot{
			Timestamp:     testBase.Add(-time.Duration(5-i) * time.Minute),
			MemoryUsageMB: float64(i),
		})
	}
	store.mu.RLock()
	kept := len(store.snapshots)
	store.mu.RUnlock()
	if kept != 3 {
		t.Fatalf("expected 3 retained snapshots, got %d", kept)
	}

	snapshot, err := store.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snapshot.System == nil || snapshot.System.MemoryUsageMB != 4 {
		t.Fatalf("expected latest system snapshot on the dashboard, got %+v", snapshot.System)
	}
}
