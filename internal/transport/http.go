// Package transport provides the monitor HTTP API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/ftbench/internal/storage"
	"github.com/gateway-fm/ftbench/pkg/types"
)

// maxRateTPS bounds the rate cap accepted over the control API.
const maxRateTPS = 100000

// StatusProvider is the live benchmark surface the monitor exposes.
type StatusProvider interface {
	Snapshot() types.StatsSnapshot
	Pause()
	Resume()
	SetRate(tps float64)
	Rate() float64
}

// HealthChecker defines the interface for readiness checking.
type HealthChecker interface {
	CheckRPC(ctx context.Context) error
}

// HealthFunc adapts a plain probe function to the HealthChecker interface.
type HealthFunc func(ctx context.Context) error

// CheckRPC calls f.
func (f HealthFunc) CheckRPC(ctx context.Context) error { return f(ctx) }

// validateRate rejects rate caps the limiter cannot honor.
func validateRate(tps float64) error {
	if math.IsNaN(tps) || math.IsInf(tps, 0) {
		return fmt.Errorf("tps must be a finite number")
	}
	if tps < 0 {
		return fmt.Errorf("tps cannot be negative, got %g", tps)
	}
	if tps > maxRateTPS {
		return fmt.Errorf("tps exceeds maximum of %d", maxRateTPS)
	}
	return nil
}

// Server handles HTTP requests for the benchmark monitor.
type Server struct {
	provider  StatusProvider
	store     storage.Storage // nil when run history is disabled
	health    HealthChecker
	metrics   http.Handler
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	// CORS configuration
	corsAllowedOrigins []string // Parsed list of allowed origins
	corsAllowAll       bool     // True if "*" or empty (allow all origins)
}

// NewServer creates a new HTTP server. store may be nil when run history is
// disabled; metrics may be nil to serve the default Prometheus registry.
func NewServer(provider StatusProvider, store storage.Storage, health HealthChecker, metrics http.Handler, logger *slog.Logger, corsAllowedOrigins string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	// Create WebSocket server for real-time snapshot streaming
	wsServer := NewWebSocketServer(provider, logger)
	wsServer.Start()

	s := &Server{
		provider:  provider,
		store:     store,
		health:    health,
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	// Parse CORS allowed origins
	origins := strings.TrimSpace(corsAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Close stops the WebSocket broadcaster and disconnects its clients.
func (s *Server) Close() {
	s.wsServer.Stop()
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Versioned API endpoints (v1)
	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/runs", s.corsMiddleware(s.handleRuns))
	mux.HandleFunc("/v1/runs/", s.corsMiddleware(s.handleRunDetail))
	mux.HandleFunc("/v1/control/pause", s.corsMiddleware(s.handlePause))
	mux.HandleFunc("/v1/control/resume", s.corsMiddleware(s.handleResume))
	mux.HandleFunc("/v1/control/rate", s.corsMiddleware(s.handleRate))

	// WebSocket live stats
	mux.HandleFunc("/ws", s.wsServer.Handler())

	// Health endpoints (unversioned - standard Kubernetes probes)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	// Prometheus metrics (unversioned - standard path)
	mux.Handle("/metrics", s.metrics)

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			// Check if the origin is in the allowed list
			allowed := false
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleStatus returns the current benchmark snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.provider.Snapshot())
}

// handleRuns returns run history with optional pagination.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeJSONError(w, "Run history is disabled (no database configured)", http.StatusServiceUnavailable)
		return
	}

	limit := 50 // default
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	result, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, result)
}

// handleRunDetail handles GET and DELETE on /v1/runs/{id}.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSONError(w, "Run history is disabled (no database configured)", http.StatusServiceUnavailable)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		s.writeJSONError(w, "Missing run ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.store.DeleteRun(r.Context(), runID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.writeJSONError(w, "Run not found", http.StatusNotFound)
				return
			}
			s.writeJSONError(w, "Failed to delete run: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, map[string]bool{"deleted": true})

	case http.MethodGet:
		run, err := s.store.GetRun(r.Context(), runID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.writeJSONError(w, "Run not found", http.StatusNotFound)
				return
			}
			s.writeJSONError(w, "Failed to get run: "+err.Error(), http.StatusInternalServerError)
			return
		}
		samples, err := s.store.GetSamples(r.Context(), runID)
		if err != nil {
			s.writeJSONError(w, "Failed to get samples: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, &storage.RunDetail{Run: run, Samples: samples})

	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePause suspends steady-state submission.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.provider.Pause()
	s.writeJSON(w, types.ControlResponse{Status: "paused"})
}

// handleResume releases the pause gate.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.provider.Resume()
	s.writeJSON(w, types.ControlResponse{Status: "resumed"})
}

// handleRate sets or clears the steady-state rate cap.
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateRate(req.TPS); err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.provider.SetRate(req.TPS)
	s.writeJSON(w, types.ControlResponse{Status: "ok", TPS: s.provider.Rate()})
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok", "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleReady handles readiness probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []ReadinessCheck{}
	allHealthy := true

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := s.health.CheckRPC(ctx)
		latency := time.Since(start).Milliseconds()

		check := ReadinessCheck{
			Name:      "near-rpc",
			LatencyMs: latency,
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		} else {
			check.Status = "ok"
		}
		checks = append(checks, check)
	}

	response := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
