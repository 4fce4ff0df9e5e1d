// Package repository provides data access interfaces and implementations
// for the paper analysis service.
//
// # Overview
//
// Each store the analysis pipeline depends on is an interface with two
// implementations: a PostgreSQL one built on pgx, and an in-memory one used
// when no database is configured and in service tests.
//
//   - PaperRepository: papers fetched from arXiv or uploaded locally
//   - CredentialRepository: encrypted per-user provider API keys
//   - TaskRepository: analysis job records and their progress
//   - ReportRepository: the single five-dimension report per paper
//
// # Thread Safety
//
// All implementations are safe for concurrent use by multiple goroutines.
//
// # Error Handling
//
// Methods return errors from the domain package, wrapped with context:
//
//   - domain.ErrNotFound: Resource does not exist or belongs to another user
//   - domain.ErrAlreadyExists: Unique constraint violation
//   - domain.ErrInvalidInput: Invalid parameters provided
//   - domain.ErrInvalidTransition: Task update on a terminal task
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, &cfg.Database, logger)
//	store := repository.NewPgStore(db)
//	// or, without a database:
//	store := repository.NewMemoryStore()
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-analysis-service/internal/database"
	"github.com/helixir/paper-analysis-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Paper listing pagination defaults and limits.
const (
	defaultFilterLimit = 20
	maxFilterLimit     = 100
)

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}

// PaperRepository persists papers.
type PaperRepository interface {
	// Create inserts a paper and assigns its ID and timestamps.
	// Returns domain.ErrAlreadyExists when the external ID is taken.
	Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)

	// GetByID returns domain.ErrNotFound if no matching paper exists.
	GetByID(ctx context.Context, id int64) (*domain.Paper, error)

	// GetByExternalID looks a paper up by its source identifier.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Paper, error)

	// InsertNew inserts the papers whose external ID is not yet stored and
	// returns only those, in input order, with IDs assigned.
	InsertNew(ctx context.Context, papers []*domain.Paper) ([]*domain.Paper, error)

	// List returns the matching page and the total match count.
	List(ctx context.Context, filter domain.PaperFilter) ([]*domain.Paper, int64, error)
}

// CredentialRepository persists API keys. Every lookup is scoped to a user;
// another user's credential ID behaves as if it does not exist.
type CredentialRepository interface {
	// Create inserts a credential. When IsDefault is set, every other default
	// of the same user and provider is cleared in the same statement.
	Create(ctx context.Context, cred *domain.Credential) (*domain.Credential, error)

	// GetByID returns an active credential owned by userID.
	GetByID(ctx context.Context, userID, id int64) (*domain.Credential, error)

	// ListByUser returns the user's active credentials, oldest first.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Credential, error)

	// Update applies the non-nil fields. Setting IsDefault to true clears
	// the other defaults of the credential's provider.
	Update(ctx context.Context, userID, id int64, upd domain.CredentialUpdate) (*domain.Credential, error)

	// SoftDelete marks the credential inactive and drops its default flag.
	SoftDelete(ctx context.Context, userID, id int64) error

	// TouchLastUsed records when a job last resolved the credential.
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// TaskRepository persists analysis tasks.
type TaskRepository interface {
	// Create inserts a new task.
	Create(ctx context.Context, task *domain.AnalysisTask) error

	// GetByID returns domain.ErrNotFound (entity analysis_task) if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error)

	// Update validates upd against the stored task and persists it.
	// Returns domain.ErrInvalidTransition for updates to terminal tasks.
	Update(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (*domain.AnalysisTask, error)

	// ListByUser returns the user's most recent tasks, newest first.
	ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.AnalysisTask, error)
}

// ReportRepository persists the one report each paper may have.
type ReportRepository interface {
	// GetByPaperID returns domain.ErrNotFound if the paper has no report.
	GetByPaperID(ctx context.Context, paperID int64) (*domain.AnalysisReport, error)

	// Create inserts a report. Returns domain.ErrAlreadyExists if the paper has one.
	Create(ctx context.Context, report *domain.AnalysisReport) (*domain.AnalysisReport, error)

	// Update applies the non-nil fields to the report with the given ID.
	Update(ctx context.Context, id int64, upd domain.ReportUpdate) (*domain.AnalysisReport, error)

	// Upsert creates the paper's report or overwrites the existing one.
	Upsert(ctx context.Context, report *domain.AnalysisReport) (*domain.AnalysisReport, error)
}

// Store groups the repositories one process uses. It is created once at
// startup and passed to the services that need it.
type Store struct {
	Papers      PaperRepository
	Credentials CredentialRepository
	Tasks       TaskRepository
	Reports     ReportRepository
}

// NewPgStore returns a Store backed by PostgreSQL.
func NewPgStore(db DBTX) *Store {
	return &Store{
		Papers:      NewPgPaperRepository(db),
		Credentials: NewPgCredentialRepository(db),
		Tasks:       NewPgTaskRepository(db),
		Reports:     NewPgReportRepository(db),
	}
}

// NewMemoryStore returns a Store held in process memory.
func NewMemoryStore() *Store {
	return &Store{
		Papers:      NewMemoryPaperRepository(),
		Credentials: NewMemoryCredentialRepository(),
		Tasks:       NewMemoryTaskRepository(),
		Reports:     NewMemoryReportRepository(),
	}
}
