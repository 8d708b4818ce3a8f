package system

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
	"github.com/1-thr2/how-ai-automation-sub001/internal/service/metrics"
	"github.com/1-thr2/how-ai-automation-sub001/internal/ws"
)

const (
	defaultSampleEvery  = time.Minute
	defaultProbeTimeout = 2 * time.Second
)

// Probe reports availability of a named external dependency.
type Probe func(ctx context.Context) error

// HTTPProbe builds a probe that considers the dependency available when the
// endpoint answers with any status below 500.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return &availabilityError{status: resp.StatusCode}
		}
		return nil
	}
}

type availabilityError struct {
	status int
}

func (e *availabilityError) Error() string {
	return http.StatusText(e.status)
}

// Sampler periodically captures a SystemSnapshot — process heap usage,
// active stream connections, and dependency availability — and feeds it to
// the metrics store.
type Sampler struct {
	store        *metrics.Store
	hub          *ws.Hub
	logger       *slog.Logger
	interval     time.Duration
	probeTimeout time.Duration
	probes       map[string]Probe
	now          func() time.Time
}

// NewSampler constructs a sampler with sane defaults.
func NewSampler(store *metrics.Store, hub *ws.Hub, logger *slog.Logger, interval time.Duration, probes map[string]Probe) *Sampler {
	if interval <= 0 {
		interval = defaultSampleEvery
	}
	if logger != nil {
		logger = logger.With("component", "system_sampler")
	}
	return &Sampler{
		store:        store,
		hub:          hub,
		logger:       logger,
		interval:     interval,
		probeTimeout: defaultProbeTimeout,
		probes:       probes,
		now:          time.Now,
	}
}

// Run samples once immediately and then on every interval until the context
// is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	if s.logger != nil {
		s.logger.Info("system sampler started", "interval", s.interval, "probes", len(s.probes))
	}
	s.Sample(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("system sampler stopped")
			}
			return
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample captures and ingests a single snapshot.
func (s *Sampler) Sample(ctx context.Context) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	snapshot := domain.SystemSnapshot{
		Timestamp:     s.now().UTC(),
		MemoryUsageMB: float64(stats.HeapAlloc) / (1 << 20),
		Services:      make(map[string]bool, len(s.probes)),
	}
	if s.hub != nil {
		snapshot.ActiveConnections = s.hub.Count()
	}
	for name, probe := range s.probes {
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		err := probe(probeCtx)
		cancel()
		snapshot.Services[name] = err == nil
		if err != nil && s.logger != nil {
			s.logger.Warn("service probe failed", "service", name, "error", err)
		}
	}
	s.store.IngestSystem(snapshot)
}
