// Package httpx exposes the copilot's REST surface: settings, per-vendor log
// aggregation, connectivity pings, chat, and agent queries.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/service/chat"
	"github.com/intelli-123/observability-copilot/internal/service/mcpagent"
	"github.com/intelli-123/observability-copilot/internal/store"
)

// Aggregator serves vendor log envelopes and connectivity checks.
type Aggregator interface {
	FetchVendorLogs(ctx context.Context, vendor string, bypassCache bool) (json.RawMessage, error)
	Ping(ctx context.Context, vendor string) error
	ToolStatus(ctx context.Context) ([]domain.ToolStatus, error)
}

// ChatService answers questions grounded in log context.
type ChatService interface {
	Ask(ctx context.Context, question, logContext string) (string, error)
}

// AgentService routes natural-language queries to vendor agents.
type AgentService interface {
	Query(ctx context.Context, vendor, query string) (string, error)
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	settings   store.SettingsStore
	aggregator Aggregator
	chat       ChatService
	agent      AgentService
	limiter    RateLimiter

	storeHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSettings  = 30
	rateLimitLogRead   = 60
	rateLimitPing      = 60
	rateLimitAsk       = 12
	rateLimitAgent     = 6
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, settings store.SettingsStore, aggregator Aggregator, chat ChatService, agent AgentService, limiter RateLimiter, storeHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		settings:    settings,
		aggregator:  aggregator,
		chat:        chat,
		agent:       agent,
		limiter:     limiter,
		storeHealth: storeHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
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
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/api/settings", r.audit("/api/settings", r.withRateLimit("/api/settings", rateLimitSettings, rateWindowDefault, r.handleSettings)))
	r.mux.HandleFunc("/api/tool-status", r.audit("/api/tool-status", r.withRateLimit("/api/tool-status", rateLimitLogRead, rateWindowDefault, r.handleToolStatus)))

	for _, vendor := range []string{domain.VendorCloudWatch, domain.VendorGCP, domain.VendorJenkins, domain.VendorGitLab} {
		logRoute := "/api/" + vendor + "/log"
		pingRoute := "/api/" + vendor + "/ping"
		r.mux.HandleFunc(logRoute, r.audit(logRoute, r.withRateLimit(logRoute, rateLimitLogRead, rateWindowDefault, r.handleVendorLogs(vendor))))
		r.mux.HandleFunc(pingRoute, r.audit(pingRoute, r.withRateLimit(pingRoute, rateLimitPing, rateWindowDefault, r.handleVendorPing(vendor))))
	}

	r.mux.HandleFunc("/api/gemini/ask", r.audit("/api/gemini/ask", r.withRateLimit("/api/gemini/ask", rateLimitAsk, rateWindowDefault, r.handleAsk)))

	for _, vendor := range []string{mcpagent.VendorAzure, mcpagent.VendorSalesforce, mcpagent.VendorKubernetes, mcpagent.VendorCloudWatch} {
		route := "/api/" + vendor + "/query"
		r.mux.HandleFunc(route, r.audit(route, r.withRateLimit(route, rateLimitAgent, rateWindowDefault, r.handleAgentQuery(vendor))))
	}
}

func (r *Router) handleSettings(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		settings, err := r.settings.Load(req.Context())
		if err != nil {
			r.logger.Error("failed to load settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPost:
		var payload domain.Settings
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := r.settings.Save(req.Context(), payload); err != nil {
			r.logger.Error("failed to save settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Settings saved successfully!"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleToolStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	statuses, err := r.aggregator.ToolStatus(req.Context())
	if err != nil {
		r.logger.Error("failed to compute tool status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute tool status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": statuses})
}

func (r *Router) handleVendorLogs(vendor string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		bypass := strings.TrimSpace(req.URL.Query().Get("cacheBust")) != ""
		payload, err := r.aggregator.FetchVendorLogs(req.Context(), vendor, bypass)
		if err != nil {
			r.vendorError(w, vendor, err)
			return
		}
		writeRawJSON(w, http.StatusOK, payload)
	}
}

func (r *Router) handleVendorPing(vendor string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		if err := r.aggregator.Ping(req.Context(), vendor); err != nil {
			var cfgErr *domain.ConfigError
			if errors.As(err, &cfgErr) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"connected": false, "error": err.Error()})
				return
			}
			r.logger.Warn("vendor ping failed", "vendor", vendor, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"connected": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"connected": true})
	}
}

func (r *Router) handleAsk(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Question string `json:"question"`
		Context  string `json:"context"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := r.chat.Ask(req.Context(), payload.Question, payload.Context)
	if err != nil {
		if errors.Is(err, chat.ErrQuestionRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate answer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (r *Router) handleAgentQuery(vendor string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		var payload struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		result, err := r.agent.Query(req.Context(), vendor, payload.Query)
		if err != nil {
			r.agentError(w, vendor, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": result})
	}
}

// vendorError maps the aggregation error taxonomy onto status codes. A
// ConfigError fails the whole request with a single 500 carrying the message;
// the log endpoints never degrade to partial results, and the dashboard reads
// the error body rather than the status class.
func (r *Router) vendorError(w http.ResponseWriter, vendor string, err error) {
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		r.logger.Error("settings store unavailable", "vendor", vendor, "error", err)
		writeError(w, http.StatusServiceUnavailable, "settings store unavailable")
	default:
		r.logger.Error("vendor log fetch failed", "vendor", vendor, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch logs")
	}
}

func (r *Router) agentError(w http.ResponseWriter, vendor string, err error) {
	var cfgErr *domain.ConfigError
	switch {
	case errors.Is(err, mcpagent.ErrQueryRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		r.logger.Error("settings store unavailable", "vendor", vendor, "error", err)
		writeError(w, http.StatusServiceUnavailable, "settings store unavailable")
	default:
		r.logger.Error("agent query failed", "vendor", vendor, "error", err)
		writeError(w, http.StatusInternalServerError, "agent query failed")
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status := "ok"
	components := map[string]any{}
	if r.storeHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.storeHealth(ctx); err != nil {
			status = "degraded"
			components["redis"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["redis"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		recorder.Header().Set("X-Request-ID", reqID)
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		r.recordRequestMetrics(req.Method, route, status, duration)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
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

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
