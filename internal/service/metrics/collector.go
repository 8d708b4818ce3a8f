package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
)

// Soft thresholds for the collector-level diagnostics. The store's threshold
// engine is the authoritative alerting path; these only emit a log signal at
// finalization time.
const (
	slowRequestMS    = 10000.0
	costlyRequestUSD = 0.10
)

// Collector accumulates partial telemetry for one logical operation and
// finalizes it into exactly one immutable MetricRecord. Recorder calls may
// run zero or more times in any order; pipeline stages can be skipped or
// retried, so later calls simply overwrite earlier values. The caller must
// finish with either Success or Error; whichever lands first produces the
// record and the other becomes a no-op.
type Collector struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	started  time.Time
	record   domain.MetricRecord
	finished bool
}

// NewCollector starts collection for the named endpoint.
func NewCollector(store *Store, logger *slog.Logger, endpoint string) *Collector {
	if logger != nil {
		logger = logger.With("component", "metrics_collector", "endpoint", endpoint)
	}
	now := time.Now
	started := now()
	return &Collector{
		store:   store,
		logger:  logger,
		now:     now,
		started: started,
		record: domain.MetricRecord{
			ID:        uuid.NewString(),
			Timestamp: started.UTC(),
			Endpoint:  endpoint,
		},
	}
}

// RecordInput attaches the request context that the dashboard displays.
func (c *Collector) RecordInput(userInput, followupAnswers string) *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.UserInput = userInput
	c.record.FollowupAnswers = followupAnswers
	return c
}

// RecordModel notes which model served the request and how many tokens it
// consumed. Cost is derived at finalization, not here.
func (c *Collector) RecordModel(model string, tokens int) *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.ModelUsed = model
	c.record.TokensUsed = tokens
	return c
}

// RecordApproach labels the pipeline strategy that handled the request.
func (c *Collector) RecordApproach(approach, stagesCompleted string) *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.Approach = approach
	c.record.StagesCompleted = stagesCompleted
	return c
}

// RecordRAG notes the retrieval-stage counters. Calling it at all marks the
// record as having used retrieval.
func (c *Collector) RecordRAG(searches, sources, urlsVerified int) *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.RAGSearches = &searches
	c.record.RAGSources = &sources
	c.record.URLsVerified = &urlsVerified
	return c
}

// RecordResults notes how many cards the request produced.
func (c *Collector) RecordResults(cardsGenerated int) *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.CardsGenerated = cardsGenerated
	return c
}

// Success finalizes the record with a positive outcome.
func (c *Collector) Success() {
	c.finish(true, "")
}

// Error finalizes the record with the failure message.
func (c *Collector) Error(message string) {
	c.finish(false, message)
}

func (c *Collector) finish(success bool, message string) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Warn("collector finalized more than once, ignoring", "record_id", c.record.ID)
		}
		return
	}
	c.finished = true
	record := c.record
	c.mu.Unlock()

	record.LatencyMS = float64(c.now().Sub(c.started)) / float64(time.Millisecond)
	record.Success = success
	if !success {
		record.ErrorMessage = message
	}
	record.EstimatedCost = c.store.EstimateCost(record.ModelUsed, record.TokensUsed)

	if c.logger != nil {
		if success && record.LatencyMS > slowRequestMS {
			c.logger.Warn("slow request", "record_id", record.ID, "latency_ms", record.LatencyMS)
		}
		if success && record.EstimatedCost > costlyRequestUSD {
			c.logger.Warn("costly request", "record_id", record.ID, "estimated_cost", record.EstimatedCost, "model", record.ModelUsed)
		}
	}

	c.store.Ingest(record)
}
