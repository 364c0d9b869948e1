// Package api is the HTTP surface of the relay service: the streaming chat
// endpoint, the conversation read endpoints, and health probes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okarin0/relay/internal/store"
	"github.com/okarin0/relay/internal/stream"
	"github.com/okarin0/relay/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// Store is the persistence surface the API reads and writes.
// *store.Store satisfies it.
type Store interface {
	stream.Recorder
	History(ctx context.Context, page, limit int) (store.Page, error)
	ByName(ctx context.Context, conversationName string) ([]store.Entry, error)
	Latest(ctx context.Context) ([]store.Entry, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger        *slog.Logger
	Store         Store           // Required
	Models        ModelFactory    // Required
	Registry      *tools.Registry // Required
	Pool          *pgxpool.Pool   // Optional: nil disables the DB ping in /ready
	CORSOrigins   []string        // Allowed origins for CORS
	TrustProxy    bool            // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst     int             // Rate limiter burst size per IP (0 = default 60)
	StreamTimeout time.Duration   // Upper bound on one chat stream (0 = 2 minutes)
}

// Server is the relay HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store is required")
	case cfg.Models == nil:
		return nil, errors.New("model factory is required")
	case cfg.Registry == nil:
		return nil, errors.New("tool registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = 2 * time.Minute
	}

	ch := &chatHandler{
		models:        cfg.Models,
		registry:      cfg.Registry,
		recorder:      cfg.Store,
		logger:        logger,
		streamTimeout: streamTimeout,
	}
	hh := &historyHandler{store: cfg.Store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", ch.stream)
	mux.HandleFunc("GET /api/history", hh.history)
	mux.HandleFunc("GET /api/conversations/{name}", hh.conversation)
	mux.HandleFunc("GET /api/interface", hh.latest)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID precedes Logging so request_id appears in log attributes.
	// CORS precedes RateLimit so preflight OPTIONS gets CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is canceled, then drains connections for up
// to shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	<-errCh
	return nil
}
