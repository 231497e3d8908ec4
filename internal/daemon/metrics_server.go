package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/harun/luna/internal/observability"
	"github.com/rs/zerolog"
)

// StatusProvider reports daemon status for the health endpoint.
type StatusProvider interface {
	Status() Status
}

// MetricsServer exposes /metrics and /healthz.
type MetricsServer struct {
	addr   string
	status StatusProvider
	logger zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer creates a metrics server listening on addr.
func NewMetricsServer(addr string, status StatusProvider, logger zerolog.Logger) *MetricsServer {
	return &MetricsServer{
		addr:   addr,
		status: status,
		logger: logger,
	}
}

// Handler returns the HTTP handler serving metrics and health.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *MetricsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.status != nil {
		st := s.status.Status()
		body["running"] = st.Running
		body["sessions"] = st.Sessions
		body["channels"] = st.Channels
		body["uptime"] = st.Uptime.Round(time.Second).String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// Start binds the listener and serves in the background.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("metrics server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = srv
	s.listener = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down.
func (s *MetricsServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	s.logger.Info().Msg("Metrics server stopped")
	return nil
}
