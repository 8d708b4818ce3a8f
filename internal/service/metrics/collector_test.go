package metrics

import (
	"testing"
	"time"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
)

func ingestedRecords(store *Store) []domain.MetricRecord {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return append([]domain.MetricRecord(nil), store.records...)
}

func TestCollectorProducesOneRecord(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	collector := NewCollector(store, nil, "generate-cards")
	collector.started = testBase.Add(-250 * time.Millisecond)
	collector.now = func() time.Time { return testBase }

	collector.RecordInput("automate my weekly report", "uses google sheets").
		RecordModel("gpt-4o", 2000).
		RecordApproach("multi-stage", "intent,rag,draft").
		RecordResults(3)
	collector.Success()

	records := ingestedRecords(store)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	record := records[0]
	if !record.Success {
		t.Fatalf("expected success outcome")
	}
	if record.Endpoint != "generate-cards" {
		t.Fatalf("unexpected endpoint %q", record.Endpoint)
	}
	if record.LatencyMS != 250 {
		t.Fatalf("expected 250ms latency, got %v", record.LatencyMS)
	}
	if record.TokensUsed != 2000 || record.ModelUsed != "gpt-4o" {
		t.Fatalf("unexpected model telemetry %+v", record)
	}
	// 2000 tokens of gpt-4o at 0.0125/1K.
	if record.EstimatedCost != 0.025 {
		t.Fatalf("expected cost 0.025, got %v", record.EstimatedCost)
	}
	if record.CardsGenerated != 3 {
		t.Fatalf("expected 3 cards, got %d", record.CardsGenerated)
	}
	if record.UsedRAG() {
		t.Fatalf("record should not carry retrieval telemetry")
	}
}

func TestCollectorDoubleFinalizeIsNoOp(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	collector := NewCollector(store, nil, "generate-cards")

	collector.Success()
	collector.Error("too late")

	records := ingestedRecords(store)
	if len(records) != 1 {
		t.Fatalf("expected exactly one record after double finalize, got %d", len(records))
	}
	if !records[0].Success {
		t.Fatalf("first finalization wins; expected success")
	}
	if records[0].ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", records[0].ErrorMessage)
	}
}

func TestCollectorErrorOutcome(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	collector := NewCollector(store, nil, "analyze-followup")
	collector.Error("model unavailable")

	records := ingestedRecords(store)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].Success {
		t.Fatalf("expected failure outcome")
	}
	if records[0].ErrorMessage != "model unavailable" {
		t.Fatalf("unexpected message %q", records[0].ErrorMessage)
	}
}

func TestCollectorRecorderCallsOverwrite(t *testing.T) {
	store := newTestStore(t, DefaultConfig())
	collector := NewCollector(store, nil, "generate-cards")

	// Stages may retry: the latest call wins.
	collector.RecordModel("gpt-4o-mini", 100)
	collector.RecordModel("gpt-4o", 900)
	collector.RecordRAG(2, 5, 1)
	collector.RecordRAG(3, 6, 2)
	collector.Success()

	record := ingestedRecords(store)[0]
	if record.ModelUsed != "gpt-4o" || record.TokensUsed != 900 {
		t.Fatalf("expected last model call to win, got %+v", record)
	}
	if record.RAGSearches == nil || *record.RAGSearches != 3 {
		t.Fatalf("expected last rag call to win, got %v", record.RAGSearches)
	}
	if record.URLsVerified == nil || *record.URLsVerified != 2 {
		t.Fatalf("expected urls verified 2, got %v", record.URLsVerified)
	}
}
