// Package app wires the application components together.
//
// Setup builds everything the serve and bot commands share: logger, stop
// registry, report store (Postgres when configured, in-memory otherwise),
// the AI advisor (Noop when no API key is set), and the intake session
// manager.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetransit/safetransit/internal/analysis"
	"github.com/safetransit/safetransit/internal/config"
	"github.com/safetransit/safetransit/internal/log"
	"github.com/safetransit/safetransit/internal/report"
	"github.com/safetransit/safetransit/internal/stops"
	"github.com/safetransit/safetransit/internal/storage"
)

// Store is the full report store surface the transports consume.
// Both storage.Postgres and storage.Memory satisfy it.
type Store interface {
	Append(ctx context.Context, r *report.Report) error
	Recent(ctx context.Context, limit int) ([]*report.Report, error)
	StopStatus(ctx context.Context) ([]storage.StopStatus, error)
}

// Advisor is the full advice surface. analysis.Service and analysis.Noop
// both satisfy it.
type Advisor interface {
	report.Analyzer
	SafetyRecommendation(ctx context.Context, location, timeOfDay string) (string, error)
	RouteSuggestion(ctx context.Context, from, to string) (string, error)
	EmergencyGuidance(ctx context.Context) (string, error)
}

// App is the application container.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *stops.Registry
	Store    Store
	Advisor  Advisor
	Sessions *report.Sessions

	pool *pgxpool.Pool
}

// Setup builds the application from configuration.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	advisor, err := buildAdvisor(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, pool, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := report.NewSessions(report.SessionsConfig{
		Registry: registry,
		Sink:     store,
		Analyzer: advisor,
		Logger:   logger,
	})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Store:    store,
		Advisor:  advisor,
		Sessions: sessions,
		pool:     pool,
	}, nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}

func buildRegistry(cfg *config.Config) (*stops.Registry, error) {
	if cfg.StopsFile == "" {
		return stops.Default(), nil
	}
	registry, err := stops.LoadFile(cfg.StopsFile)
	if err != nil {
		return nil, fmt.Errorf("loading stops file: %w", err)
	}
	return registry, nil
}

// buildAdvisor initializes Genkit with the Google AI plugin when an API key
// is configured; otherwise advice degrades to the no-op implementation.
func buildAdvisor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Advisor, error) {
	if !cfg.HasAI() {
		logger.Info("AI analysis disabled, no API key configured")
		return analysis.Noop{}, nil
	}

	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}),
	)

	svc, err := analysis.NewService(analysis.Config{
		Genkit:      g,
		ModelName:   cfg.ModelName,
		Temperature: cfg.Temperature,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating analysis service: %w", err)
	}

	logger.Info("AI analysis enabled", "model", cfg.ModelName)
	return svc, nil
}

// buildStore connects to Postgres when configured, running migrations on
// startup, and falls back to the in-memory store otherwise.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, *pgxpool.Pool, error) {
	if !cfg.HasPostgres() {
		logger.Info("using in-memory report store, reports are lost on restart")
		return storage.NewMemory(), nil, nil
	}

	if err := storage.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to postgres report store",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	return storage.NewPostgres(pool, logger), pool, nil
}
