package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1-thr2/how-ai-automation-sub001/internal/domain"
	"github.com/1-thr2/how-ai-automation-sub001/internal/service/metrics"
	"github.com/1-thr2/how-ai-automation-sub001/internal/service/stream"
	"github.com/1-thr2/how-ai-automation-sub001/internal/ws"
)

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitDashboard = 120
	rateLimitAdmin     = 30
	rateLimitResolve   = 60
	rateLimitStream    = 30
)

// Router wires the observability HTTP surface to the store and publisher.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	store      *metrics.Store
	publisher  *stream.Publisher
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	adminToken string

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, store *metrics.Store, publisher *stream.Publisher, hub *ws.Hub, limiter RateLimiter, adminToken string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		store:     store,
		publisher: publisher,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		adminToken: strings.TrimSpace(adminToken),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/metrics/dashboard", r.audit(r.withRateLimit("dashboard", rateLimitDashboard, rateWindowDefault, r.handleDashboard)))
	r.mux.HandleFunc("/api/metrics/admin", r.audit(r.withRateLimit("admin", rateLimitAdmin, rateWindowDefault, r.handleAdmin)))
	r.mux.HandleFunc("/api/metrics/alerts/resolve", r.audit(r.withRateLimit("alerts_resolve", rateLimitResolve, rateWindowDefault, r.handleResolveAlert)))
	r.mux.HandleFunc("/api/metrics/stream", r.audit(r.withRateLimit("stream", rateLimitStream, rateWindowRealtime, r.handleStreamSSE)))
	r.mux.HandleFunc("/ws/metrics", r.audit(r.withRateLimit("stream_ws", rateLimitStream, rateWindowRealtime, r.handleStreamWS)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": r.store.RecordCount(),
	})
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	snapshot, err := r.store.Dashboard()
	if err != nil {
		r.logger.Error("dashboard snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute dashboard snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"data":      snapshot,
	})
}

// adminPayload carries the optional fields of an injected test metric.
// Omitted fields take defaults so a bare action still produces a record.
type adminPayload struct {
	Endpoint     string   `json:"endpoint"`
	LatencyMS    *float64 `json:"latency_ms"`
	Success      *bool    `json:"success"`
	ErrorMessage string   `json:"error_message"`
	TokensUsed   *int     `json:"tokens_used"`
	ModelUsed    string   `json:"model_used"`
	Approach     string   `json:"approach"`
	RAGSearches  *int     `json:"rag_searches"`
	RAGSources   *int     `json:"rag_sources"`
	URLsVerified *int     `json:"urls_verified"`
	UserInput    string   `json:"user_input"`
	Cards        *int     `json:"cards_generated"`
}

func (r *Router) handleAdmin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.verifyAdminToken(w, req) {
		return
	}
	var body struct {
		Action  string       `json:"action"`
		Payload adminPayload `json:"payload"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch body.Action {
	case "inject_test_metric":
		record := r.buildTestRecord(body.Payload)
		r.store.Ingest(record)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "record_id": record.ID})
	case "resolve_all_alerts":
		resolved := r.store.ResolveAll()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "resolved_count": resolved})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (r *Router) buildTestRecord(payload adminPayload) domain.MetricRecord {
	record := domain.MetricRecord{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Endpoint:     "admin-test",
		LatencyMS:    1200,
		Success:      true,
		TokensUsed:   500,
		ModelUsed:    "gpt-4o-mini",
		Approach:     payload.Approach,
		RAGSearches:  payload.RAGSearches,
		RAGSources:   payload.RAGSources,
		URLsVerified: payload.URLsVerified,
		UserInput:    payload.UserInput,
	}
	if payload.Endpoint != "" {
		record.Endpoint = payload.Endpoint
	}
	if payload.LatencyMS != nil {
		record.LatencyMS = *payload.LatencyMS
	}
	if payload.Success != nil {
		record.Success = *payload.Success
	}
	if !record.Success {
		record.ErrorMessage = payload.ErrorMessage
		if record.ErrorMessage == "" {
			record.ErrorMessage = "injected test failure"
		}
	}
	if payload.TokensUsed != nil {
		record.TokensUsed = *payload.TokensUsed
	}
	if payload.ModelUsed != "" {
		record.ModelUsed = payload.ModelUsed
	}
	if payload.Cards != nil {
		record.CardsGenerated = *payload.Cards
	}
	record.EstimatedCost = r.store.EstimateCost(record.ModelUsed, record.TokensUsed)
	return record
}

func (r *Router) handleResolveAlert(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	// Unknown ids are a no-op: resolution may race with eviction.
	resolved := r.store.ResolveAlert(payload.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "resolved": resolved})
}

func (r *Router) handleStreamSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(client)
	defer r.hub.Unregister(client)
	r.publisher.Serve(req.Context(), client)
}

func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(client)
	defer r.hub.Unregister(client)

	ctx, cancel := context.WithCancel(req.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	r.publisher.Serve(ctx, client)
}

func (r *Router) verifyAdminToken(w http.ResponseWriter, req *http.Request) bool {
	if r.adminToken == "" {
		writeError(w, http.StatusForbidden, "admin endpoint disabled")
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer"))
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.adminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return false
	}
	return true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// audit wraps handlers with panic recovery, request logging, and Prometheus
// request metrics.
func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("handler panic", "path", req.URL.Path, "panic", rec)
				if recorder.status == 0 {
					writeError(recorder, http.StatusInternalServerError, "internal error")
				}
			}
			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

			fields := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"bytes", recorder.bytes,
				"duration_ms", duration.Milliseconds(),
				"ip", clientIP(req),
			}
			switch {
			case status >= http.StatusInternalServerError:
				r.logger.Error("http_request", fields...)
			case status >= http.StatusBadRequest:
				r.logger.Warn("http_request", fields...)
			default:
				r.logger.Info("http_request", fields...)
			}
		}()

		next(recorder, req)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
