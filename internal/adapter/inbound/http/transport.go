// Package http provides the HTTP transport for the gateway's operational
// surface: metrics, health, and the mounted admin API. Tool calls do not
// travel over HTTP; they arrive on the stdio transport.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds graceful shutdown on context cancellation.
const shutdownTimeout = 5 * time.Second

// Transport serves the operational HTTP endpoints.
type Transport struct {
	addr     string
	registry *prometheus.Registry
	admin    http.Handler
	logger   *slog.Logger
	server   *http.Server
}

// Option configures a Transport.
type Option func(*Transport)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(t *Transport) { t.addr = addr }
}

// WithAdminHandler mounts the admin API under /admin/.
func WithAdminHandler(h http.Handler) Option {
	return func(t *Transport) { t.admin = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// NewTransport creates a Transport exposing the given Prometheus registry.
func NewTransport(registry *prometheus.Registry, opts ...Option) *Transport {
	t := &Transport{
		addr:     "127.0.0.1:8080",
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins serving and blocks until the context is cancelled or the
// server fails.
func (t *Transport) Start(ctx context.Context) error {
	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	if t.admin != nil {
		mux.Handle("/admin/", t.admin)
		mux.Handle("/admin", t.admin)
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		errCh <- t.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := t.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
