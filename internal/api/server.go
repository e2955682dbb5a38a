// Package api provides the HTTP server for Wellspring: progress, XP
// history, badges, action triggers, notifications and a live SSE feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/health"
)

// Deps are the services behind the API. Health, Notifier and Live are
// optional; their routes answer 503 when unset. Without Redelivery a
// failed dispatch is only healed by a later reconcile.
type Deps struct {
	Engine     *gamification.Engine
	Actions    domain.ActionLog
	Notifier   *gamification.Notifier
	Health     *health.Checker
	Live       *LiveHub
	Redelivery Redeliverer
	Clock      clock.Clock
	Logger     *log.Logger
}

// Redeliverer queues a trigger whose dispatch failed in a way a later
// attempt could fix. It reports whether the trigger was queued.
type Redeliverer interface {
	Redeliver(t gamification.Trigger, cause error) bool
}

// Server is the Wellspring HTTP API server.
type Server struct {
	deps           Deps
	timeout        time.Duration
	metricsEnabled bool
	newID          func() string
	log            *log.Logger
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		deps:    deps,
		timeout: 30 * time.Second,
		newID:   uuid.NewString,
		log:     logger.With("component", "api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTimeout sets the per-request timeout. SSE streams are exempt.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))
			r.Get("/catalog", s.handleCatalog)
			r.Route("/users/{user}", func(r chi.Router) {
				r.Get("/progress", s.handleProgress)
				r.Get("/xp", s.handleHistory)
				r.Get("/badges", s.handleBadges)
				r.Post("/actions/{action}", s.handleAction)
				r.Post("/reconcile", s.handleReconcile)
				r.Get("/verify", s.handleVerify)
				r.Get("/notifications", s.handleNotifications)
				r.Post("/notifications/{id}/shown", s.handleNotificationShown)
			})
		})
		r.Get("/users/{user}/live", s.handleLive)
	})

	return r
}

// handleHealth reports the latest checker round.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.deps.Health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.deps.Health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// statusFor maps domain errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidGrant), errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrFutureActivity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflictRetryExhausted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransient), errors.Is(err, domain.ErrAggregatesUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeError(w, code, err.Error())
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
