// Package api exposes the control surface of the crawl engine over HTTP:
// instrument registration, limiter and store status, and Prometheus
// metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saturn/internal/ratelimit"
	"saturn/internal/register"
	"saturn/internal/store"
)

// Server hosts the HTTP endpoints.
type Server struct {
	registrar *register.Registrar
	store     *store.SQLiteStore
	limiters  []*ratelimit.Limiter
	http      *http.Server
	log       *slog.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, registrar *register.Registrar, s *store.SQLiteStore, limiters ...*ratelimit.Limiter) *Server {
	srv := &Server{
		registrar: registrar,
		store:     s,
		limiters:  limiters,
		log:       slog.Default().With("component", "api"),
	}
	srv.http = &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/instruments", s.handleRegisterInstrument)
	mux.HandleFunc("GET /api/v1/instruments", s.handleListInstruments)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// ListenAndServe starts the HTTP listener and blocks until ctx is
// cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutting down: %w", err)
	}
	return nil
}
