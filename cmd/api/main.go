package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
	httpx "github.com/1-thr2/how-ai-automation-sub001/internal/http"
	"github.com/1-thr2/how-ai-automation-sub001/internal/service/metrics"
	"github.com/1-thr2/how-ai-automation-sub001/internal/service/stream"
	"github.com/1-thr2/how-ai-automation-sub001/internal/service/system"
	"github.com/1-thr2/how-ai-automation-sub001/internal/ws"
	"github.com/1-thr2/how-ai-automation-sub001/pkg/config"
	"github.com/1-thr2/how-ai-automation-sub001/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	level := slog.LevelInfo
	if cfg.Environment == "development" {
		level = slog.LevelDebug
	}
	log := logger.New("metrics-api", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := metrics.NewStore(metrics.Config{
		MaxLatencyMS:     cfg.MaxLatencyMS,
		MinSuccessRate:   cfg.MinSuccessRate,
		MaxCostPerHour:   cfg.MaxCostPerHour,
		MaxTokensPerHour: cfg.MaxTokensPerHour,
		MaxErrorsPerHour: cfg.MaxErrorsPerHour,
		MaxRecords:       cfg.MaxRecords,
		RetentionWindow:  cfg.RetentionWindow,
		AlertRetention:   cfg.AlertRetention,
	}, log)

	hub := ws.NewHub()
	store.SetAlertNotifier(func(alerts []domain.Alert) {
		payload, err := json.Marshal(map[string]any{"alerts": alerts})
		if err != nil {
			log.Warn("failed to marshal alert broadcast", "error", err)
			return
		}
		// Fan out off the ingesting goroutine so a slow stream cannot
		// stall the request that raised the alert.
		go hub.Broadcast(stream.EventAlerts, payload)
	})

	publisher := stream.NewPublisher(store, log, cfg.StreamInterval, cfg.StreamLifetime)

	sampler := system.NewSampler(store, hub, log, cfg.SystemSampleEvery, parseProbes(cfg.ServiceProbes))
	go sampler.Run(ctx)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, store, publisher, hub, limiter, cfg.AdminToken)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("metrics api starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("metrics api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// parseProbes turns "openai=https://...,search=https://..." into named probes.
func parseProbes(raw string) map[string]system.Probe {
	probes := make(map[string]system.Probe)
	client := &http.Client{Timeout: 2 * time.Second}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		probes[name] = system.HTTPProbe(client, url)
	}
	return probes
}
