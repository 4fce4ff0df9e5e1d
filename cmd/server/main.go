// Package main provides the entry point for the paper analysis HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/analysis"
	"github.com/helixir/paper-analysis-service/internal/config"
	"github.com/helixir/paper-analysis-service/internal/credentials"
	"github.com/helixir/paper-analysis-service/internal/database"
	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/events"
	"github.com/helixir/paper-analysis-service/internal/library"
	"github.com/helixir/paper-analysis-service/internal/llm"
	"github.com/helixir/paper-analysis-service/internal/observability"
	"github.com/helixir/paper-analysis-service/internal/papersources"
	"github.com/helixir/paper-analysis-service/internal/papersources/arxiv"
	"github.com/helixir/paper-analysis-service/internal/repository"
	"github.com/helixir/paper-analysis-service/internal/scheduler"
	"github.com/helixir/paper-analysis-service/internal/secrets"
	httpserver "github.com/helixir/paper-analysis-service/internal/server/http"
)

const metricsNamespace = "paper_analysis"

// The metrics type must satisfy every recorder the services accept.
var (
	_ analysis.Recorder          = (*observability.Metrics)(nil)
	_ papersources.FetchRecorder = (*observability.Metrics)(nil)
	_ httpserver.RequestRecorder = (*observability.Metrics)(nil)
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-analysis-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: PostgreSQL when enabled, process memory otherwise.
	var (
		db    *database.DB
		store *repository.Store
	)
	if cfg.Database.Enabled {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info().Msg("database connection established")

		if cfg.Database.MigrationAutoRun {
			if err := database.RunMigrations(db, cfg.Database.MigrationPath, logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		store = repository.NewPgStore(db)
	} else {
		logger.Warn().Msg("database disabled, using in-memory store")
		store = repository.NewMemoryStore()
	}

	cipher, err := secrets.NewCipherFromHex(cfg.Secrets.EncryptionKey)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	metrics := observability.NewMetrics(metricsNamespace)

	publisher, err := newPublisher(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	factory := llm.NewFactory(llm.FactoryConfig{
		BaseURLs:   providerMap(cfg.LLM.BaseURLs),
		HTTPClient: &http.Client{Timeout: cfg.LLM.Timeout},
	})

	source := arxiv.New(arxiv.Config{
		BaseURL:     cfg.ArXiv.BaseURL,
		Timeout:     cfg.ArXiv.Timeout,
		RateLimit:   cfg.ArXiv.RateLimit,
		BurstSize:   cfg.ArXiv.BurstSize,
		MaxAttempts: cfg.ArXiv.MaxAttempts,
		RetryDelay:  cfg.ArXiv.RetryDelay,
		UserAgent:   cfg.ArXiv.UserAgent,
	}, logger, metrics)

	manager, err := analysis.NewManager(analysis.Dependencies{
		Store:     store,
		Factory:   factory,
		Decrypter: cipher,
		Publisher: publisher,
		Recorder:  metrics,
	}, analysis.Config{
		SystemPrompt:     cfg.Analysis.SystemPrompt,
		MaxFullTextChars: cfg.Analysis.MaxFullTextChars,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		DefaultModels:    providerMap(cfg.LLM.DefaultModels),
	}, logger)
	if err != nil {
		return fmt.Errorf("create analysis manager: %w", err)
	}

	papers := library.NewService(store, source, publisher, logger)
	creds := credentials.NewService(store.Credentials, cipher, factory, logger)

	// Daily fetch.
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			Spec:       cfg.Scheduler.Spec,
			Query:      cfg.Scheduler.Query,
			MaxResults: cfg.Scheduler.MaxResults,
			Timeout:    cfg.Scheduler.Timeout,
		}, papers, logger)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		sched.Start()
	}

	services := httpserver.Services{
		Papers:      papers,
		Analyses:    manager,
		Credentials: creds,
		Metrics:     metrics,
	}
	if db != nil {
		services.Health = db
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Minute, // Long timeout for SSE streaming.
		IdleTimeout:     2 * time.Minute,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		PollInterval:    cfg.Analysis.PollInterval,
	}
	httpSrv := httpserver.NewServer(httpCfg, services, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("http_address", httpCfg.Address).
		Bool("database", db != nil).
		Bool("scheduler", sched != nil)
	if sched != nil {
		readyLog = readyLog.Time("next_fetch", sched.Next(time.Now()))
	}
	readyLog.Msg("paper-analysis-service is ready")

	// Wait for shutdown signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	logger.Info().Msg("shutting down paper-analysis-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("scheduler did not stop in time")
		}
	}

	// Running analysis jobs finish before storage and the publisher close.
	waitForJobs(shutdownCtx, manager, logger)

	logger.Info().Msg("paper-analysis-service shutdown complete")
	return runErr
}

// newPublisher returns the Kafka publisher when enabled and a no-op otherwise.
func newPublisher(cfg config.KafkaConfig, logger zerolog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	pub, err := events.NewKafkaPublisher(events.Config{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}
	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("kafka event publisher enabled")
	return pub, nil
}

func waitForJobs(ctx context.Context, manager *analysis.Manager, logger zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		manager.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("analysis jobs drained")
	case <-ctx.Done():
		logger.Warn().Msg("shutdown timeout reached with analysis jobs still running")
	}
}

// providerMap keys a config map by provider, dropping unknown names.
func providerMap(in map[string]string) map[domain.Provider]string {
	out := make(map[domain.Provider]string, len(in))
	for name, value := range in {
		p, err := domain.ParseProvider(name)
		if err != nil {
			continue
		}
		out[p] = value
	}
	return out
}
