package metrics

import (
	"log/slog"
	"strings"
	"sync"
)

// Blended USD rates per 1K tokens. Models missing from the table fall back
// to defaultRatePer1K; prefix matching covers dated variants such as
// "gpt-4o-2024-08-06".
var modelRates = map[string]float64{
	"gpt-4o":            0.0125,
	"gpt-4o-mini":       0.00075,
	"gpt-4-turbo":       0.03,
	"gpt-4":             0.045,
	"gpt-3.5-turbo":     0.002,
	"o1":                0.06,
	"o1-mini":           0.012,
	"o3-mini":           0.0055,
	"claude-3-5-sonnet": 0.018,
	"claude-3-haiku":    0.00175,
}

const defaultRatePer1K = 0.002

type priceTable struct {
	logger *slog.Logger
	mu     sync.Mutex
	warned map[string]struct{}
}

func newPriceTable(logger *slog.Logger) *priceTable {
	if logger != nil {
		logger = logger.With("component", "price_table")
	}
	return &priceTable{logger: logger, warned: make(map[string]struct{})}
}

// EstimateCost derives the USD cost for a model invocation. Unknown models
// use the default rate and log a warning on first sight.
func (t *priceTable) EstimateCost(model string, tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	rate, ok := lookupRate(model)
	if !ok {
		t.warnUnknown(model)
	}
	return float64(tokens) / 1000 * rate
}

func lookupRate(model string) (float64, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return defaultRatePer1K, false
	}
	if rate, ok := modelRates[name]; ok {
		return rate, true
	}
	// Longest-prefix fallback so versioned names resolve to their family.
	bestLen := 0
	bestRate := defaultRatePer1K
	for key, rate := range modelRates {
		if strings.HasPrefix(name, key) && len(key) > bestLen {
			bestLen = len(key)
			bestRate = rate
		}
	}
	if bestLen > 0 {
		return bestRate, true
	}
	return defaultRatePer1K, false
}

func (t *priceTable) warnUnknown(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.warned[model]; seen {
		return
	}
	t.warned[model] = struct{}{}
	if t.logger != nil {
		t.logger.Warn("no price entry for model, using default rate", "model", model, "rate_per_1k", defaultRatePer1K)
	}
}
