package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for health checks and metrics.
type Server struct {
	Address string
	Logger  *slog.Logger
	ready   atomic.Bool
}

// NewServer creates a new metrics server.
func NewServer(address string, logger *slog.Logger) (result *Server) {
	result = &Server{
		Address: address,
		Logger:  logger,
	}

	return result
}

// SetReady flips the readiness probe. The MCP listener calls it once it is bound.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the mux serving probes and the Prometheus registry.
func (s *Server) Handler() (result http.Handler) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.LivenessHandler)
	mux.HandleFunc("/readyz", s.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	result = mux
	return result
}

// Start starts the metrics server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) (err error) {
	server := &http.Server{
		Addr:              s.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.Logger.InfoContext(ctx, "starting metrics server", slog.String("address", s.Address))

		startErr := server.ListenAndServe()
		if startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			s.Logger.ErrorContext(ctx, "metrics server error", slog.String("error", startErr.Error()))
		}
	}()

	<-ctx.Done()

	s.Logger.InfoContext(ctx, "shutting down metrics server")

	err = server.Shutdown(context.Background())
	if err != nil {
		err = fmt.Errorf("shutting down metrics server: %w", err)
		return err
	}

	return err
}

// LivenessHandler handles liveness probe requests.
func (s *Server) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler handles readiness probe requests.
func (s *Server) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
