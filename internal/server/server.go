/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes a read-only status endpoint for a running shift.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/nightshift/internal/logbuffer"
	"github.com/friendsincode/nightshift/internal/models"
	"github.com/friendsincode/nightshift/internal/telemetry"
)

// StatusSource provides the current run state.
type StatusSource interface {
	Snapshot() models.ShiftRun
}

// AttemptSource reads the attempt journal of a run.
type AttemptSource interface {
	ListRun(ctx context.Context, runID string) ([]models.ActionRecord, error)
	CountByOutcome(ctx context.Context, runID string) (map[models.AttemptOutcome]int, error)
}

// Server serves /healthz, /status, /attempts, /logs and /metrics.
type Server struct {
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	status    StatusSource
	logBuffer *logbuffer.Buffer
	lockHeld  func() bool
	attempts  AttemptSource
}

// Option configures optional status fields.
type Option func(*Server)

// WithLockStatus reports the run lock state on /healthz.
func WithLockStatus(held func() bool) Option {
	return func(s *Server) { s.lockHeld = held }
}

// WithAttempts serves the attempt journal on /attempts.
func WithAttempts(src AttemptSource) Option {
	return func(s *Server) { s.attempts = src }
}

// New constructs the server. logBuf may be nil, in which case /logs
// returns an empty list.
func New(bind string, status StatusSource, logBuf *logbuffer.Buffer, logger zerolog.Logger, opts ...Option) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(otelhttp.NewMiddleware("nightshift-status"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		logger:    logger.With().Str("component", "status_server").Logger(),
		router:    router,
		status:    status,
		logBuffer: logBuf,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              bind,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background. A listen failure is logged; the run
// goes on without a status endpoint.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("status server error")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/attempts", s.handleAttempts)
	s.router.Get("/logs", s.handleLogs)
	s.router.Handle("/metrics", telemetry.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.status != nil {
		resp["run_status"] = s.status.Snapshot().Status
	}
	if s.lockHeld != nil {
		resp["lock_held"] = s.lockHeld()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "no_run")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

// handleAttempts lists journaled attempts of the current run, or of the
// run named by ?run_id=.
func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeError(w, http.StatusServiceUnavailable, "no_journal")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		if s.status == nil {
			writeError(w, http.StatusServiceUnavailable, "no_run")
			return
		}
		runID = s.status.Snapshot().ID
	}

	counts, err := s.attempts.CountByOutcome(r.Context(), runID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to count attempts")
		writeError(w, http.StatusInternalServerError, "journal_error")
		return
	}
	records, err := s.attempts.ListRun(r.Context(), runID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to list attempts")
		writeError(w, http.StatusInternalServerError, "journal_error")
		return
	}
	if records == nil {
		records = []models.ActionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"counts":   counts,
		"attempts": records,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logBuffer == nil {
		writeJSON(w, http.StatusOK, []logbuffer.LogEntry{})
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:     q.Get("level"),
		Component: q.Get("component"),
		RunID:     q.Get("run_id"),
		Search:    q.Get("search"),
		Limit:     200,
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}

	entries := s.logBuffer.Query(params)
	if entries == nil {
		entries = []logbuffer.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
