// Package api exposes a read-only HTTP surface over the pool: status,
// health, permission cache stats, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbnexus/dbnexus/internal/health"
	"github.com/dbnexus/dbnexus/internal/metrics"
	"github.com/dbnexus/dbnexus/internal/pool"
)

// Server is the status and metrics HTTP server.
type Server struct {
	pool       *pool.Pool
	checker    *health.Checker
	metrics    *metrics.Collector
	apiKey     string
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a server over the given pool. An empty apiKey disables
// authentication.
func NewServer(p *pool.Pool, hc *health.Checker, m *metrics.Collector, apiKey string) *Server {
	return &Server{
		pool:      p,
		checker:   hc,
		metrics:   m,
		apiKey:    apiKey,
		startTime: time.Now(),
	}
}

// Start starts the HTTP server on the given port.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.requireKey(s.statusHandler)).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.HandleFunc("/permissions/stats", s.requireKey(s.permissionsHandler)).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("status API listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("api server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

type statusResponse struct {
	Uptime       string      `json:"uptime"`
	DatabaseType string      `json:"database_type"`
	Pool         pool.Status `json:"pool"`
	Goroutines   int         `json:"goroutines"`
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		DatabaseType: s.pool.DatabaseType().String(),
		Pool:         s.pool.Status(),
		Goroutines:   runtime.NumGoroutine(),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}
	snap := s.checker.Current()
	code := http.StatusOK
	if snap.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, snap)
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	st := s.pool.Status()
	if st.Total == 0 {
		writeError(w, http.StatusServiceUnavailable, "no live connections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) permissionsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Permissions().Stats())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
