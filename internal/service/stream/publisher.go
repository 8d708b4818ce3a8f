package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
	"github.com/1-thr2/how-ai-automation-sub001/internal/ws"
)

const (
	// DefaultInterval is the cadence of stats pushes while a session is open.
	DefaultInterval = 30 * time.Second
	// DefaultLifetime is the hard ceiling on a session, measured from open.
	DefaultLifetime = 5 * time.Minute
)

// Event names emitted on a live-stream session.
const (
	EventConnected = "connected"
	EventStats     = "stats"
	EventAlerts    = "alerts"
	EventError     = "error"
)

// SnapshotSource produces point-in-time dashboard aggregates.
type SnapshotSource interface {
	Dashboard() (domain.DashboardSnapshot, error)
}

// Publisher runs live-stream sessions. Each session pushes a connected
// acknowledgment and an immediate stats event, then a fresh stats event per
// interval until the subscriber disconnects or the lifetime ceiling lands.
type Publisher struct {
	source   SnapshotSource
	logger   *slog.Logger
	interval time.Duration
	lifetime time.Duration
}

// NewPublisher constructs a Publisher. Non-positive durations fall back to
// the defaults.
func NewPublisher(source SnapshotSource, logger *slog.Logger, interval, lifetime time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if logger != nil {
		logger = logger.With("component", "stream_publisher")
	}
	return &Publisher{source: source, logger: logger, interval: interval, lifetime: lifetime}
}

// Serve drives one subscriber session and blocks until it closes. The
// transport is closed on every exit path; no events follow.
func (p *Publisher) Serve(ctx context.Context, sub ws.Subscriber) {
	defer sub.Close()

	opened := time.Now().UTC()
	ack, _ := json.Marshal(map[string]string{
		"status":    "connected",
		"timestamp": opened.Format(time.RFC3339Nano),
	})
	if err := sub.SendEvent(EventConnected, ack); err != nil {
		return
	}
	p.pushTick(sub)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.lifetime)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			if p.logger != nil {
				p.logger.Info("stream session reached lifetime ceiling", "opened_at", opened)
			}
			return
		case <-ticker.C:
			p.pushTick(sub)
		}
	}
}

// pushTick computes and pushes one stats event, plus an alerts event when the
// snapshot carries active alerts. Any failure is converted into an error
// event rather than a dropped tick; the timer keeps running regardless.
func (p *Publisher) pushTick(sub ws.Subscriber) {
	snapshot, err := p.snapshot()
	if err != nil {
		p.pushError(sub, err)
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		p.pushError(sub, err)
		return
	}
	if err := sub.SendEvent(EventStats, payload); err != nil {
		p.logPushFailure(EventStats, err)
		return
	}
	if len(snapshot.ActiveAlerts) == 0 {
		return
	}
	alerts, err := json.Marshal(map[string]any{"alerts": snapshot.ActiveAlerts})
	if err != nil {
		p.pushError(sub, err)
		return
	}
	if err := sub.SendEvent(EventAlerts, alerts); err != nil {
		p.logPushFailure(EventAlerts, err)
	}
}

// snapshot shields the tick from a panicking source; the session must keep
// its timer even when aggregation blows up.
func (p *Publisher) snapshot() (snapshot domain.DashboardSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot panic: %v", r)
		}
	}()
	return p.source.Dashboard()
}

func (p *Publisher) pushError(sub ws.Subscriber, cause error) {
	if p.logger != nil {
		p.logger.Warn("stream tick failed", "error", cause)
	}
	payload, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		return
	}
	if err := sub.SendEvent(EventError, payload); err != nil {
		p.logPushFailure(EventError, err)
	}
}

func (p *Publisher) logPushFailure(event string, err error) {
	if p.logger != nil {
		p.logger.Warn("stream push failed", "event", event, "error", err)
	}
}
