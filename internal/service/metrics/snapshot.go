package metrics

import (
	"sort"
	"time"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
)

const (
	recentErrorLimit   = 50
	errorInputMaxRunes = 100
	hourlyBucketCount  = 24
	dashboardDayWindow = 24 * time.Hour
)

// Dashboard computes the full aggregate view on demand. Aggregation runs
// under the read lock so it observes a consistent point-in-time state while
// ingestion continues on other goroutines.
func (s *Store) Dashboard() (domain.DashboardSnapshot, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today := filterSince(s.records, startOfDay)

	snapshot := domain.DashboardSnapshot{
		GeneratedAt:  now.UTC(),
		Today:        todayStats(today),
		Hourly:       hourlyBuckets(s.records, now),
		Models:       modelUsage(today),
		Endpoints:    endpointStats(s.records),
		RAG:          ragStats(today),
		RecentErrors: recentErrors(s.records),
		ActiveAlerts: s.activeAlertsLocked(),
	}
	if n := len(s.snapshots); n > 0 {
		latest := s.snapshots[n-1]
		snapshot.System = &latest
	}
	return snapshot, nil
}

func filterSince(records []domain.MetricRecord, cutoff time.Time) []domain.MetricRecord {
	out := make([]domain.MetricRecord, 0, len(records))
	for _, r := range records {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func todayStats(records []domain.MetricRecord) domain.TodayStats {
	stats := domain.TodayStats{Count: len(records)}
	if stats.Count == 0 {
		return stats
	}
	var successes int
	var latencySum float64
	for _, r := range records {
		if r.Success {
			successes++
		}
		latencySum += r.LatencyMS
		stats.TotalCost += r.EstimatedCost
		stats.TotalTokens += r.TokensUsed
	}
	stats.SuccessRate = float64(successes) / float64(stats.Count)
	stats.AvgLatencyMS = latencySum / float64(stats.Count)
	return stats
}

// hourlyBuckets keys the last 24h of records by calendar hour of day, not by
// hours-ago offsets.
func hourlyBuckets(records []domain.MetricRecord, now time.Time) []domain.HourlyBucket {
	type acc struct {
		count     int
		successes int
		latency   float64
		cost      float64
	}
	var accs [hourlyBucketCount]acc

	windowStart := now.Add(-dashboardDayWindow)
	for _, r := range records {
		if r.Timestamp.Before(windowStart) {
			continue
		}
		a := &accs[r.Timestamp.Hour()]
		a.count++
		if r.Success {
			a.successes++
		}
		a.latency += r.LatencyMS
		a.cost += r.EstimatedCost
	}

	buckets := make([]domain.HourlyBucket, hourlyBucketCount)
	for hour, a := range accs {
		bucket := domain.HourlyBucket{Hour: hour, Count: a.count, TotalCost: a.cost}
		if a.count > 0 {
			bucket.SuccessRate = float64(a.successes) / float64(a.count)
			bucket.AvgLatencyMS = a.latency / float64(a.count)
		}
		buckets[hour] = bucket
	}
	return buckets
}

func modelUsage(today []domain.MetricRecord) []domain.ModelUsage {
	byModel := make(map[string]*domain.ModelUsage)
	for _, r := range today {
		if r.ModelUsed == "" {
			continue
		}
		usage := byModel[r.ModelUsed]
		if usage == nil {
			usage = &domain.ModelUsage{Model: r.ModelUsed}
			byModel[r.ModelUsed] = usage
		}
		usage.Count++
		usage.TotalTokens += r.TokensUsed
		usage.TotalCost += r.EstimatedCost
	}

	usages := make([]domain.ModelUsage, 0, len(byModel))
	for _, usage := range byModel {
		if len(today) > 0 {
			usage.Percent = float64(usage.Count) / float64(len(today)) * 100
		}
		usages = append(usages, *usage)
	}
	sort.Slice(usages, func(i, j int) bool {
		if usages[i].Count != usages[j].Count {
			return usages[i].Count > usages[j].Count
		}
		return usages[i].Model < usages[j].Model
	})
	return usages
}

func endpointStats(records []domain.MetricRecord) []domain.EndpointStats {
	type acc struct {
		count     int
		successes int
		latency   float64
		cost      float64
	}
	byEndpoint := make(map[string]*acc)
	for _, r := range records {
		a := byEndpoint[r.Endpoint]
		if a == nil {
			a = &acc{}
			byEndpoint[r.Endpoint] = a
		}
		a.count++
		if r.Success {
			a.successes++
		}
		a.latency += r.LatencyMS
		a.cost += r.EstimatedCost
	}

	stats := make([]domain.EndpointStats, 0, len(byEndpoint))
	for endpoint, a := range byEndpoint {
		stats = append(stats, domain.EndpointStats{
			Endpoint:     endpoint,
			Count:        a.count,
			AvgLatencyMS: a.latency / float64(a.count),
			SuccessRate:  float64(a.successes) / float64(a.count),
			TotalCost:    a.cost,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

func ragStats(today []domain.MetricRecord) domain.RAGStats {
	var stats domain.RAGStats
	var (
		ragCount      int
		searchSum     int
		sourceCount   int
		sourceSum     int
		verifiedCount int
		verifiedSum   int
	)
	for _, r := range today {
		if !r.UsedRAG() {
			continue
		}
		ragCount++
		searchSum += *r.RAGSearches
		if r.RAGSources != nil {
			sourceCount++
			sourceSum += *r.RAGSources
		}
		if r.URLsVerified != nil {
			verifiedCount++
			verifiedSum += *r.URLsVerified
		}
	}
	if len(today) > 0 {
		stats.UtilizationRate = float64(ragCount) / float64(len(today)) * 100
	}
	if ragCount > 0 {
		stats.AvgSearchesPerRequest = float64(searchSum) / float64(ragCount)
	}
	if sourceCount > 0 {
		stats.AvgSourcesFound = float64(sourceSum) / float64(sourceCount)
	}
	if verifiedCount > 0 {
		stats.URLVerificationRate = float64(verifiedSum) / float64(verifiedCount) * 100
	}
	return stats
}

func recentErrors(records []domain.MetricRecord) []domain.ErrorEntry {
	entries := make([]domain.ErrorEntry, 0, recentErrorLimit)
	for i := len(records) - 1; i >= 0 && len(entries) < recentErrorLimit; i-- {
		r := records[i]
		if r.Success {
			continue
		}
		entries = append(entries, domain.ErrorEntry{
			Timestamp: r.Timestamp,
			Endpoint:  r.Endpoint,
			Message:   r.ErrorMessage,
			UserInput: truncateRunes(r.UserInput, errorInputMaxRunes),
		})
	}
	return entries
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
