// Command vocatutor is the main entry point for the vocabulary-training bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vocatutor/vocatutor/internal/app"
	"github.com/vocatutor/vocatutor/internal/clock"
	"github.com/vocatutor/vocatutor/internal/config"
	"github.com/vocatutor/vocatutor/internal/lesson"
	"github.com/vocatutor/vocatutor/internal/llmgateway"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider/anyllm"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider/mock"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider/openai"
	"github.com/vocatutor/vocatutor/internal/observe"
	"github.com/vocatutor/vocatutor/internal/progression"
	"github.com/vocatutor/vocatutor/internal/validator"
	"github.com/vocatutor/vocatutor/internal/vocab"
	"github.com/vocatutor/vocatutor/internal/vocab/memstore"
	"github.com/vocatutor/vocatutor/internal/vocab/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocatutor: config file %q not found — pass -config with the path to a YAML config file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocatutor: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("vocatutor starting", "config", *configPath, "listen_addr", cfg.Server.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vocatutor"})
	if err != nil {
		slog.Error("failed to init observability provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to build store", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	backend, err := reg.Create(cfg.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "backend", cfg.LLM.Backend, "err", err)
		return 1
	}

	gateway := llmgateway.New(backend, store, llmgateway.Config{
		RatePerMinute: cfg.LLM.RatePerMinute,
		MaxConcurrent: cfg.LLM.MaxInflight,
		CallTimeout:   cfg.CallTimeout(),
		Retries:       cfg.LLM.Retries,
	})

	v := validator.New(gateway, validator.WithFuzzyThreshold(cfg.Validator.FuzzyThreshold))

	lessons := lesson.New(store, v, clock.Real{}, lesson.Config{
		Timeout:        cfg.LessonTimeout(),
		SelectionCount: cfg.Lesson.WordsPerLesson,
		Progression: progression.Config{
			ChoiceToInputThreshold: cfg.Srs.ChoiceToInputThreshold,
			MasteryThreshold:       cfg.Srs.MasteredThreshold,
		},
	})

	application := app.New(cfg, store, gateway, lessons, clock.Real{})

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildStore picks the Postgres-backed Store when a DSN is configured
// (VOCATUTOR_POSTGRES_DSN), otherwise falls back to the in-memory Store —
// convenient for local development and for running without a database.
func buildStore(ctx context.Context, cfg *config.Config) (vocab.Store, error) {
	if cfg.Postgres.DSN == "" {
		slog.Warn("no postgres DSN configured — using in-memory store (data will not survive a restart)")
		return memstore.New(), nil
	}
	return postgres.NewStore(ctx, cfg.Postgres.DSN)
}

// registerBuiltinProviders wires the LLM backend names a config.yaml may
// select via llm.backend into reg, from which run() creates the configured
// backend.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("anyllm", func(c config.LLMConfig) (provider.Provider, error) {
		var opts []anyllmlib.Option
		if c.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(c.APIKey))
		}
		return anyllm.New(c.AnyLLMProvider, c.Model, opts...)
	})
	reg.Register("openai", func(c config.LLMConfig) (provider.Provider, error) {
		var opts []openai.Option
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		if c.CallTimeoutSeconds > 0 {
			opts = append(opts, openai.WithTimeout(time.Duration(c.CallTimeoutSeconds)*time.Second))
		}
		return openai.New(c.APIKey, c.Model, opts...)
	})
	reg.Register("mock", func(config.LLMConfig) (provider.Provider, error) {
		return &mock.Provider{}, nil
	})
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
