// Command relay serves the streaming chat API: it relays conversations to
// Gemini, answers over SSE, optionally performs web search as a model tool,
// and records finished exchanges in PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okarin0/relay/db"
	"github.com/okarin0/relay/internal/api"
	"github.com/okarin0/relay/internal/config"
	"github.com/okarin0/relay/internal/gemini"
	"github.com/okarin0/relay/internal/log"
	"github.com/okarin0/relay/internal/search"
	"github.com/okarin0/relay/internal/store"
	"github.com/okarin0/relay/internal/stream"
	"github.com/okarin0/relay/internal/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{Level: logLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	st, err := store.New(pool, logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	searchService := search.NewService(search.NewClient(), logger)
	registry := tools.NewRegistry(tools.NewInternetSearch(searchService, logger))

	// Provider clients are built per request: the API key arrives with each
	// call and is never held by the server.
	models := func(ctx context.Context, apiKey string) (stream.Model, error) {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey: apiKey,
			Model:  cfg.ModelName,
			Tools:  registry.Declarations(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	srv, err := api.NewServer(api.ServerConfig{
		Logger:        logger,
		Store:         st,
		Models:        models,
		Registry:      registry,
		Pool:          pool,
		CORSOrigins:   cfg.CORSOrigins,
		TrustProxy:    cfg.TrustProxy,
		RateBurst:     cfg.RateBurst,
		StreamTimeout: cfg.ProviderTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return srv.Run(ctx, cfg.Addr, logger)
}

// logLevel maps the configured level name to slog, defaulting to info.
func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
