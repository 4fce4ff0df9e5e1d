// Package analysis turns papers into five-dimension reports by running
// asynchronous LLM jobs.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/llm"
	"github.com/helixir/paper-analysis-service/internal/observability"
	"github.com/helixir/paper-analysis-service/internal/repository"
)

// Job progress checkpoints.
const (
	ProgressProcessing = 10
	ProgressAdapter    = 30
	ProgressResponse   = 80
	ProgressCompleted  = 100
)

// ProviderFactory builds a vendor adapter. *llm.Factory implements it.
type ProviderFactory interface {
	Create(provider domain.Provider, cfg llm.Config) (llm.Provider, error)
}

// Decrypter opens stored credential secrets. *secrets.Cipher implements it.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// EventPublisher emits job lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Recorder receives job telemetry. observability.Metrics implements it.
type Recorder interface {
	RecordJobStarted(provider string)
	RecordJobFinished(provider, status string, seconds float64)
	RecordLLMRequest(provider, status string)
	RecordLLMUsage(provider string, tokens int, cost float64)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordJobStarted(string)                   {}
func (nopRecorder) RecordJobFinished(string, string, float64) {}
func (nopRecorder) RecordLLMRequest(string, string)           {}
func (nopRecorder) RecordLLMUsage(string, int, float64)       {}

// Config holds job settings.
type Config struct {
	// SystemPrompt is sent as the system message. Defaults to DefaultSystemPrompt.
	SystemPrompt string
	// MaxFullTextChars bounds the full text embedded in the prompt.
	MaxFullTextChars int
	// Temperature and MaxTokens are passed to every adapter.
	Temperature float64
	MaxTokens   int
	// DefaultModels is used when neither the request nor the credential names a model.
	DefaultModels map[domain.Provider]string
}

// Dependencies are the collaborators of a Manager. Publisher and Recorder are optional.
type Dependencies struct {
	Store     *repository.Store
	Factory   ProviderFactory
	Decrypter Decrypter
	Publisher EventPublisher
	Recorder  Recorder
}

// StartRequest asks for one paper to be analyzed on behalf of a user.
// An empty Provider selects the user's default credential; an empty Model
// uses the credential's model.
type StartRequest struct {
	UserID   int64
	PaperID  int64
	Provider domain.Provider
	Model    string
}

// Manager creates analysis tasks and runs each one in its own goroutine.
// Jobs are independent: there is no queue, no concurrency cap and no
// cancellation. Two jobs on the same paper race and the report written
// last is kept.
type Manager struct {
	store     *repository.Store
	factory   ProviderFactory
	decrypter Decrypter
	publisher EventPublisher
	recorder  Recorder
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(deps Dependencies, cfg Config, logger zerolog.Logger) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("analysis: store is required")
	}
	if deps.Factory == nil {
		return nil, errors.New("analysis: provider factory is required")
	}
	if deps.Decrypter == nil {
		return nil, errors.New("analysis: decrypter is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxFullTextChars == 0 {
		cfg.MaxFullTextChars = DefaultMaxFullTextChars
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = llm.DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.DefaultMaxTokens
	}

	return &Manager{
		store:     deps.Store,
		factory:   deps.Factory,
		decrypter: deps.Decrypter,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		cfg:       cfg,
		logger:    logger.With().Str("component", "analysis").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// job is everything the detached part of a task needs.
type job struct {
	task   *domain.AnalysisTask
	paper  *domain.Paper
	apiKey string
}

// StartAnalysis validates the request, persists a pending task and returns
// it without waiting for the model. Missing paper, unsupported provider,
// missing credential and undecryptable secret are reported here and leave
// no task behind. Everything after this call returns is recorded on the
// task instead.
func (m *Manager) StartAnalysis(ctx context.Context, req StartRequest) (*domain.AnalysisTask, error) {
	paper, err := m.store.Papers.GetByID(ctx, req.PaperID)
	if err != nil {
		return nil, err
	}

	if req.Provider != "" && !req.Provider.IsValid() {
		return nil, &domain.UnsupportedProviderError{Provider: string(req.Provider)}
	}

	creds, err := m.store.Credentials.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cred := domain.SelectCredential(creds, req.Provider)
	if cred == nil {
		return nil, &domain.NoAPIKeyConfiguredError{UserID: req.UserID, Provider: req.Provider}
	}

	apiKey, err := m.decrypter.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = cred.ModelName
	}
	if model == "" {
		model = m.cfg.DefaultModels[cred.Provider]
	}

	now := m.now()
	task := &domain.AnalysisTask{
		ID:        uuid.New(),
		UserID:    req.UserID,
		PaperID:   paper.ID,
		Provider:  cred.Provider,
		ModelName: model,
		Status:    domain.TaskStatusPending,
		StartedAt: now,
	}
	if err := m.store.Tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create analysis task: %w", err)
	}

	logger := m.taskLogger(task)
	if err := m.store.Credentials.TouchLastUsed(ctx, cred.ID, now); err != nil {
		logger.Warn().Err(err).Int64("api_key_id", cred.ID).Msg("failed to record credential use")
	}

	m.recorder.RecordJobStarted(string(task.Provider))
	m.publish(ctx, logger, domain.EventTypeAnalysisStarted, task, domain.AnalysisStartedPayload{
		TaskID:    task.ID,
		UserID:    task.UserID,
		PaperID:   task.PaperID,
		Provider:  task.Provider,
		ModelName: task.ModelName,
	})
	logger.Info().Str("model", model).Msg("analysis task created")

	snapshot := *task
	m.wg.Add(1)
	go m.run(context.WithoutCancel(ctx), job{task: task, paper: paper, apiKey: apiKey})

	return &snapshot, nil
}

// GetTaskStatus returns the current snapshot of a task.
func (m *Manager) GetTaskStatus(ctx context.Context, taskID uuid.UUID) (*domain.AnalysisTask, error) {
	return m.store.Tasks.GetByID(ctx, taskID)
}

// ListTasks returns the user's most recent tasks, newest first.
func (m *Manager) ListTasks(ctx context.Context, userID int64, limit int) ([]*domain.AnalysisTask, error) {
	return m.store.Tasks.ListByUser(ctx, userID, limit)
}

// Wait blocks until every started job has reached a terminal state.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) taskLogger(task *domain.AnalysisTask) zerolog.Logger {
	return observability.WithTaskContext(m.logger, task.ID.String(), task.PaperID, string(task.Provider))
}

// run executes a job and funnels any error or panic into the failed state.
func (m *Manager) run(ctx context.Context, j job) {
	defer m.wg.Done()

	started := m.now()
	logger := m.taskLogger(j.task)

	defer func() {
		if r := recover(); r != nil {
			m.fail(ctx, logger, j.task, fmt.Errorf("analysis panicked: %v", r), started)
		}
	}()

	if err := m.execute(ctx, logger, j, started); err != nil {
		m.fail(ctx, logger, j.task, err, started)
	}
}

func (m *Manager) execute(ctx context.Context, logger zerolog.Logger, j job, started time.Time) error {
	task := j.task

	if err := m.update(ctx, task.ID, domain.TaskUpdate{
		Status:   statusPtr(domain.TaskStatusProcessing),
		Progress: intPtr(ProgressProcessing),
	}); err != nil {
		return err
	}

	temperature := m.cfg.Temperature
	adapter, err := m.factory.Create(task.Provider, llm.Config{
		APIKey:      j.apiKey,
		Model:       task.ModelName,
		Temperature: &temperature,
		MaxTokens:   m.cfg.MaxTokens,
	})
	if err != nil {
		return err
	}

	if err := m.update(ctx, task.ID, domain.TaskUpdate{Progress: intPtr(ProgressAdapter)}); err != nil {
		return err
	}

	resp, err := adapter.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: m.cfg.SystemPrompt},
		{Role: llm.RoleUser, Content: BuildPrompt(j.paper, m.cfg.MaxFullTextChars)},
	})
	if err != nil {
		m.recorder.RecordLLMRequest(string(task.Provider), "error")
		return err
	}
	m.recorder.RecordLLMRequest(string(task.Provider), "ok")

	if err := m.update(ctx, task.ID, domain.TaskUpdate{Progress: intPtr(ProgressResponse)}); err != nil {
		return err
	}

	now := m.now()
	report := &domain.AnalysisReport{
		PaperID:        task.PaperID,
		ReportSections: ParseResponse(resp.Content),
		Status:         domain.TaskStatusCompleted,
		GeneratedAt:    now,
	}
	if _, err := m.store.Reports.Upsert(ctx, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	tokens := resp.TokensUsed
	cost := adapter.EstimateCost(tokens)
	if err := m.update(ctx, task.ID, domain.TaskUpdate{
		Status:       statusPtr(domain.TaskStatusCompleted),
		Progress:     intPtr(ProgressCompleted),
		TokensUsed:   &tokens,
		CostEstimate: &cost,
		CompletedAt:  &now,
	}); err != nil {
		return err
	}

	duration := now.Sub(started)
	m.recorder.RecordLLMUsage(string(task.Provider), tokens, cost)
	m.recorder.RecordJobFinished(string(task.Provider), string(domain.TaskStatusCompleted), duration.Seconds())
	m.publish(ctx, logger, domain.EventTypeAnalysisCompleted, task, domain.AnalysisCompletedPayload{
		TaskID:       task.ID,
		PaperID:      task.PaperID,
		Provider:     task.Provider,
		TokensUsed:   tokens,
		CostEstimate: cost,
		DurationMs:   duration.Milliseconds(),
	})

	logger.Info().
		Int("tokens_used", tokens).
		Float64("cost_estimate", cost).
		Dur("duration", duration).
		Msg("analysis completed")
	return nil
}

func (m *Manager) update(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) error {
	if _, err := m.store.Tasks.Update(ctx, id, upd); err != nil {
		return fmt.Errorf("failed to update analysis task: %w", err)
	}
	return nil
}

// fail moves the task to the failed state with cause as its error message.
func (m *Manager) fail(ctx context.Context, logger zerolog.Logger, task *domain.AnalysisTask, cause error, started time.Time) {
	now := m.now()
	msg := cause.Error()

	logger.Error().Err(cause).Msg("analysis failed")

	if _, err := m.store.Tasks.Update(ctx, task.ID, domain.TaskUpdate{
		Status:       statusPtr(domain.TaskStatusFailed),
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to mark analysis task as failed")
	}

	m.recorder.RecordJobFinished(string(task.Provider), string(domain.TaskStatusFailed), now.Sub(started).Seconds())
	m.publish(ctx, logger, domain.EventTypeAnalysisFailed, task, domain.AnalysisFailedPayload{
		TaskID:       task.ID,
		PaperID:      task.PaperID,
		Provider:     task.Provider,
		ErrorMessage: msg,
	})
}

// publish emits an event. Publishing is best effort and never affects the task.
func (m *Manager) publish(ctx context.Context, logger zerolog.Logger, eventType string, task *domain.AnalysisTask, payload interface{}) {
	event, err := domain.NewEvent(eventType, task.ID.String(), domain.EntityAnalysisTask, payload)
	if err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus { return &s }

func intPtr(i int) *int { return &i }
