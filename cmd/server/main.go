package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/api"
	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/curriculum"
	"github.com/p-n-ai/pai-course/internal/mastery"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/platform/sqlite"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/remediation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// No WriteTimeout: remediation sockets stay open; HTTP routes carry
	// their own timeout middleware.
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"progress_backend", cfg.Progress.Backend,
			"auth_enabled", cfg.AuthEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is the wired service: the HTTP handler plus everything it holds open.
type app struct {
	handler http.Handler
	closers []func()
}

// Close releases backend connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// backend is the storage chosen by LEARN_PROGRESS_BACKEND.
type backend struct {
	progress      progress.Store
	mastery       mastery.Store
	conversations remediation.ConversationStore
	events        course.EventLogger
	budget        ai.BudgetChecker
	checks        map[string]api.HealthCheck
	closers       []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{closers: b.closers}

	loader, err := curriculum.NewLoader(cfg.CurriculumPath, curriculum.WithPassThreshold(cfg.Quiz.PassThreshold))
	if err != nil {
		a.Close()
		return nil, err
	}

	agg := mastery.NewAggregator(b.mastery)
	reg, err := catalog.Build(loader, course.Deps{
		Store:      b.progress,
		Aggregator: agg,
		Events:     b.events,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building catalog: %w", err)
	}

	router := newAIRouter(cfg.AI)
	if !router.HasProvider() {
		slog.Warn("no AI provider configured, remediation replies will use the fallback message")
	} else if err := router.HealthCheck(ctx); err != nil {
		slog.Warn("no AI provider is reachable yet", "providers", router.Providers(), "error", err)
	}

	srv, err := api.New(api.Config{
		Registry:   reg,
		Aggregator: agg,
		Remediation: remediation.NewEngine(remediation.EngineConfig{
			AIRouter:   router,
			Store:      b.conversations,
			Aggregator: agg,
			Budget:     b.budget,
		}),
		JWTSecret:   cfg.Auth.JWTSecret,
		CORSOrigins: cfg.CORS.Origins,
		Checks:      b.checks,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = srv.Handler()

	slog.Info("course engine ready",
		"modules", len(reg.List()),
		"ai_providers", router.Providers(),
		"pass_threshold", cfg.Quiz.PassThreshold,
	)
	return a, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (_ *backend, err error) {
	b := &backend{
		conversations: remediation.NewMemoryStore(),
		events:        course.SlogEventLogger{},
		budget:        ai.NewInMemoryBudget(cfg.AI.LearnerTokenBudget),
		checks:        map[string]api.HealthCheck{},
	}
	defer func() {
		if err != nil {
			(&app{closers: b.closers}).Close()
		}
	}()

	switch cfg.Progress.Backend {
	case config.BackendMemory:
		b.progress = progress.NewMemoryStore()
		b.mastery = mastery.NewMemoryStore()

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Progress.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { db.Close() })
		b.checks["sqlite"] = db.PingContext
		if b.progress, err = progress.NewSQLiteStore(db); err != nil {
			return nil, err
		}
		if b.mastery, err = mastery.NewSQLiteStore(db); err != nil {
			return nil, err
		}

	case config.BackendRedis:
		c, err := cache.New(ctx, cfg.Cache.URL, cache.WithPoolSize(cfg.Cache.PoolSize))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { c.Close() })
		b.checks["cache"] = c.HealthCheck
		if b.progress, err = progress.NewRedisStore(c.Client); err != nil {
			return nil, err
		}
		if b.mastery, err = mastery.NewRedisStore(c.Client); err != nil {
			return nil, err
		}
		if b.budget, err = ai.NewRedisBudget(c.Client, cfg.AI.LearnerTokenBudget); err != nil {
			return nil, err
		}

	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Database.URL, database.WithPoolBounds(cfg.Database.MaxConns, cfg.Database.MinConns))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checks["database"] = db.HealthCheck
		if err = db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if b.progress, err = progress.NewPostgresStore(db.Pool); err != nil {
			return nil, err
		}
		if b.mastery, err = mastery.NewPostgresStore(db.Pool); err != nil {
			return nil, err
		}
		if b.conversations, err = remediation.NewPostgresStore(db.Pool); err != nil {
			return nil, err
		}
		b.events = course.NewPostgresEventLogger(db.Pool)

	default:
		return nil, fmt.Errorf("unknown progress backend %q", cfg.Progress.Backend)
	}
	return b, nil
}

// newAIRouter registers the configured providers in fallback order:
// OpenAI, DeepSeek, then a local Ollama.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	r := ai.NewRouter()
	if cfg.OpenAIAPIKey != "" {
		r.Register("openai", ai.NewOpenAIProvider(cfg.OpenAIAPIKey))
	}
	if cfg.DeepSeekAPIKey != "" {
		r.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeekAPIKey))
	}
	if cfg.OllamaEnabled {
		r.Register("ollama", ai.NewOllamaProvider(cfg.OllamaURL))
	}
	return r
}
