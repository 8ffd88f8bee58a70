// Package server exposes monitors over HTTP: a websocket event stream,
// Prometheus metrics, recent logs and the live watch set.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"filemonitor/internal/event"
	"filemonitor/internal/journal"
	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"
	"filemonitor/internal/monitor"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type Server struct {
	Registry *monitor.Registry
	Bus      *event.Bus[event.FileEvent]
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Journal  *journal.Journal
	// AllowedOrigins lists extra websocket origins. Same-host origins are
	// always accepted.
	AllowedOrigins []string
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", securityHeadersHandler(cacheControlNoStore, s.handleEvents))
	mux.Handle("/metrics", s.Metrics.Handler())
	mux.HandleFunc("/logs", securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(s.handleLogs)))
	mux.HandleFunc("/watches", securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(s.handleWatches)))
	mux.HandleFunc("/journal", securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(s.handleJournal)))
	mux.HandleFunc("/healthz", securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(s.handleHealth)))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	if s.Logger != nil {
		s.Logger.Info("http server listening", map[string]string{
			"filemonitor.category": "server",
			"addr":                 listener.Addr().String(),
		})
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
