package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for health monitoring and subscription control.
type Server struct {
	monitor *Monitor
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new health server listening on port.
func NewServer(monitor *Monitor, port int) *Server {
	s := &Server{
		monitor: monitor,
		log:     slog.Default().With("component", "health"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /subscriptions/{vm_id}/pause", s.handleControl(Target.Pause, "paused"))
	mux.HandleFunc("POST /subscriptions/{vm_id}/resume", s.handleControl(Target.Resume, "resumed"))
	return mux
}

// Start serves until Stop. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info("Health server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.CheckHealth(r.Context()).SystemStatus

	code := http.StatusOK
	if status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleControl(action func(Target), past string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vmID, err := strconv.ParseUint(r.PathValue("vm_id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid vm_id"})
			return
		}
		t, ok := s.monitor.Lookup(vmID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown vm_id"})
			return
		}

		action(t)
		s.monitor.Invalidate()
		s.log.Info("Subscription "+past, "vm_id", vmID, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]any{"vm_id": vmID, "status": past})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
