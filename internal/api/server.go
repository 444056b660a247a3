// Package api serves the controller's status and self-metrics over HTTP.
// Read-only: every handler renders the latest published tick snapshot.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wattscale/wattscale/internal/engine"
	"go.uber.org/zap"
)

// SnapshotSource provides the latest controller snapshot.
type SnapshotSource interface {
	Snapshot() engine.Snapshot
}

// Server is the status/metrics HTTP listener.
type Server struct {
	logger   *zap.Logger
	source   SnapshotSource
	registry *prometheus.Registry
	server   *http.Server
}

// NewServer wires the routes.
func NewServer(addr string, source SnapshotSource, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		logger:   logger,
		source:   source,
		registry: registry,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	r.HandleFunc("/services/{name}", s.handleService).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks; run in its own goroutine.
func (s *Server) Start() error {
	s.logger.Info("Status API listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	RunID      string            `json:"run_id"`
	Started    string            `json:"started"`
	Tick       uint64            `json:"tick"`
	Workload   engine.Workload   `json:"workload"`
	Contention engine.Contention `json:"contention"`
	Stability  float64           `json:"stability_score"`
	Thresholds engine.Thresholds `json:"thresholds"`
	TotalPower float64           `json:"total_power_watts"`
	TotalRPS   float64           `json:"total_rps"`
	Replicas   int               `json:"total_replicas"`
	DryRun     bool              `json:"dry_run"`
	Services   []string          `json:"services"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Snapshot()
	if snap.Tick == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no tick completed yet"})
		return
	}

	names := make([]string, 0, len(snap.Services))
	for name := range snap.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, statusResponse{
		RunID:      snap.RunID,
		Started:    humanize.Time(snap.StartedAt),
		Tick:       snap.Tick,
		Workload:   snap.Workload,
		Contention: snap.Contention,
		Stability:  snap.Stability,
		Thresholds: snap.Thresholds,
		TotalPower: snap.Totals.Power,
		TotalRPS:   snap.Totals.RPS,
		Replicas:   snap.Totals.Replicas,
		DryRun:     snap.DryRun,
		Services:   names,
	})
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Snapshot()
	writeJSON(w, http.StatusOK, snap.Services)
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	snap := s.source.Snapshot()
	status, ok := snap.Services[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown service " + name})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
