package metrics

import "testing"

func TestLookupRateExactAndPrefix(t *testing.T) {
	if rate, ok := lookupRate("gpt-4o"); !ok || rate != 0.0125 {
		t.Fatalf("expected exact match, got %v ok=%v", rate, ok)
	}
	// Dated variants resolve to their family via the longest prefix.
	if rate, ok := lookupRate("gpt-4o-2024-08-06"); !ok || rate != 0.0125 {
		t.Fatalf("expected prefix match to gpt-4o, got %v ok=%v", rate, ok)
	}
	if rate, ok := lookupRate("GPT-4O-MINI"); !ok || rate != 0.00075 {
		t.Fatalf("expected case-insensitive match, got %v ok=%v", rate, ok)
	}
	if rate, ok := lookupRate("llama-99"); ok || rate != defaultRatePer1K {
		t.Fatalf("expected default rate for unknown model, got %v ok=%v", rate, ok)
	}
}

func TestEstimateCost(t *testing.T) {
	table := newPriceTable(nil)
	if got := table.EstimateCost("gpt-4o", 2000); got != 0.025 {
		t.Fatalf("expected 0.025, got %v", got)
	}
	if got := table.EstimateCost("gpt-4o", 0); got != 0 {
		t.Fatalf("expected zero tokens to cost nothing, got %v", got)
	}
	if got := table.EstimateCost("unknown-model", 1000); got != defaultRatePer1K {
		t.Fatalf("expected default rate applied, got %v", got)
	}
}

func TestUnknownModelWarnedOnce(t *testing.T) {
	table := newPriceTable(nil)
	table.EstimateCost("mystery-1", 100)
	table.EstimateCost("mystery-1", 100)
	table.mu.Lock()
	defer table.mu.Unlock()
	if len(table.warned) != 1 {
		t.Fatalf("expected a single warned entry, got %d", len(table.warned))
	}
}
