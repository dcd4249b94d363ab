// Package poolapi exposes a single pool's occupancy and health over HTTP:
// a JSON stats endpoint, a liveness/readiness probe, and a Prometheus
// metrics handler. It is an optional debug surface — applications embed
// it when they want the pool's state reachable without wiring their own
// handlers.
package poolapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/takapi327/ldbc/mysql/pool"
)

// Server is the debug HTTP surface for one *pool.Pool.
type Server struct {
	label      string
	pool       *pool.Pool
	metrics    *pool.Metrics
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds a Server over p. metrics may be nil, in which case
// no /metrics route is registered.
func NewServer(label string, p *pool.Pool, metrics *pool.Metrics) *Server {
	return &Server{
		label:     label,
		pool:      p,
		metrics:   metrics,
		startTime: time.Now(),
	}
}

// Start begins serving on addr (e.g. "127.0.0.1:9090") in the
// background. Use Stop for graceful shutdown.
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ldbc: poolapi: listen on %s: %w", addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("ldbc: poolapi: server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down within 10s.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	status := s.pool.Status()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pool":           s.label,
		"active":         status.Active,
		"idle":           status.Idle,
		"total":          status.Total,
		"waiting":        status.Waiting,
		"exhausted":      status.Exhausted,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	status := s.pool.Status()
	// A pool is considered healthy while its total connection count (idle,
	// active and being dialled) is non-zero; an exhausted pool is still
	// "up", just busy.
	if status.Total == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no_connections"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
