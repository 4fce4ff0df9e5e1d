// Package scheduler runs the periodic paper fetch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/library"
	"github.com/helixir/paper-analysis-service/internal/papersources"
)

// Defaults for the daily fetch.
const (
	DefaultSpec       = "0 2 * * *"
	DefaultQuery      = "time series"
	DefaultMaxResults = 10
	DefaultTimeout    = 5 * time.Minute
)

// Fetcher stores newly fetched papers.
type Fetcher interface {
	FetchAndStore(ctx context.Context, params papersources.FetchParams) (*library.FetchResult, error)
}

// Config configures the scheduler.
type Config struct {
	// Spec is a five-field cron expression evaluated in UTC.
	Spec       string
	Query      string
	MaxResults int
	// Timeout bounds one run.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Spec == "" {
		c.Spec = DefaultSpec
	}
	if c.Query == "" {
		c.Query = DefaultQuery
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// RunSummary counts the outcome of one run.
type RunSummary struct {
	Fetched int
	Stored  int
	Skipped int
}

// Scheduler runs the fetch job on a cron schedule.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	cron    *cron.Cron
	logger  zerolog.Logger

	mu      sync.Mutex
	started bool
}

// New creates a scheduler and registers the fetch job. It does not start it.
func New(cfg Config, fetcher Fetcher, logger zerolog.Logger) (*Scheduler, error) {
	if fetcher == nil {
		return nil, errors.New("scheduler: fetcher is required")
	}
	cfg.applyDefaults()

	logger = logger.With().Str("component", "scheduler").Logger()
	cronLogger := zerologCronLogger{logger: logger}

	s := &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}

	if _, err := s.cron.AddFunc(cfg.Spec, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info().Str("spec", s.cfg.Spec).Str("query", s.cfg.Query).Msg("scheduler started")
}

// Stop halts the schedule and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run time.
func (s *Scheduler) Next(now time.Time) time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(now)
}

// RunOnce performs one fetch with the configured query.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info().Str("query", s.cfg.Query).Int("max_results", s.cfg.MaxResults).Msg("scheduled fetch started")

	result, err := s.fetcher.FetchAndStore(ctx, papersources.FetchParams{
		Query:      s.cfg.Query,
		MaxResults: s.cfg.MaxResults,
	})
	if err != nil {
		s.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled fetch failed")
		return nil, err
	}

	summary := &RunSummary{
		Fetched: len(result.Papers),
		Stored:  len(result.StoredIDs),
	}
	summary.Skipped = summary.Fetched - summary.Stored

	s.logger.Info().
		Int("fetched", summary.Fetched).
		Int("stored", summary.Stored).
		Int("skipped", summary.Skipped).
		Dur("duration", time.Since(start)).
		Msg("scheduled fetch completed")
	return summary, nil
}

// zerologCronLogger adapts zerolog to cron.Logger.
type zerologCronLogger struct {
	logger zerolog.Logger
}

func (l zerologCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l zerologCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
