// Package api provides the admin HTTP server for LeadPipe.
//
// It exposes health, lead statistics and prospect lookups, and hosts the Twilio inbound
// webhook when that transport is active.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/store"
)

// DefaultAddr is the default listen address of the admin API.
const DefaultAddr = ":8080"

// DefaultHistoryLimit is how many conversation messages a prospect lookup returns.
const DefaultHistoryLimit = 20

// Option configures a Server.
type Option func(*Server)

// WithTwilioWebhook mounts h at POST /twilio/webhook.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(s *Server) { s.twilioWebhook = h }
}

// WithLocation sets the timezone in which "today" starts for statistics.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// Server serves the admin API.
type Server struct {
	st            store.Store
	twilioWebhook http.HandlerFunc
	loc           *time.Location
	now           func() time.Time
}

// NewServer creates a Server backed by st.
func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{st: st, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("GET /prospects/{id}", s.prospectHandler)
	if s.twilioWebhook != nil {
		mux.HandleFunc("POST /twilio/webhook", s.twilioWebhook)
	}
	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("Server.Run: stopped")
	return nil
}
