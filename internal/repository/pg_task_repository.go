package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const taskColumns = `id, user_id, paper_id, provider, model_name, status, progress,
			tokens_used, cost_estimate, error_message, started_at, completed_at,
			created_at, updated_at`

// Compile-time interface verification.
var _ TaskRepository = (*PgTaskRepository)(nil)

// PgTaskRepository is a PostgreSQL implementation of TaskRepository.
type PgTaskRepository struct {
	db DBTX
}

// NewPgTaskRepository creates a new PostgreSQL task repository.
func NewPgTaskRepository(db DBTX) *PgTaskRepository {
	return &PgTaskRepository{db: db}
}

// Create inserts a new task.
func (r *PgTaskRepository) Create(ctx context.Context, task *domain.AnalysisTask) error {
	if task == nil {
		return domain.NewValidationError("task", "task cannot be nil")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	now := time.Now().UTC()
	if task.StartedAt.IsZero() {
		task.StartedAt = now
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
		INSERT INTO analysis_tasks (
			id, user_id, paper_id, provider, model_name, status, progress,
			tokens_used, cost_estimate, error_message, started_at, completed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		task.ID, task.UserID, task.PaperID, task.Provider, task.ModelName, task.Status, task.Progress,
		task.TokensUsed, task.CostEstimate, task.ErrorMessage, task.StartedAt, task.CompletedAt,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return domain.NewNotFoundError(domain.EntityPaper, fmt.Sprintf("%d", task.PaperID))
		}
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError(domain.EntityAnalysisTask, task.ID.String())
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by its ID.
func (r *PgTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error) {
	query := `SELECT ` + taskColumns + ` FROM analysis_tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityAnalysisTask, id.String())
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// Update reads the task, applies upd and writes it back. The write is
// conditioned on the task still being non-terminal, so a concurrent
// terminal write is never overwritten.
func (r *PgTaskRepository) Update(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (*domain.AnalysisTask, error) {
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := upd.Apply(task); err != nil {
		return nil, err
	}
	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE analysis_tasks SET
			status = $2, progress = $3, tokens_used = $4, cost_estimate = $5,
			error_message = $6, completed_at = $7, updated_at = $8
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	result, err := r.db.Exec(ctx, query,
		task.ID, task.Status, task.Progress, task.TokensUsed, task.CostEstimate,
		task.ErrorMessage, task.CompletedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, domain.ErrInvalidTransition
	}
	return task, nil
}

// ListByUser returns the user's most recent tasks.
func (r *PgTaskRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.AnalysisTask, error) {
	offset := 0
	applyPaginationDefaults(&limit, &offset)

	query := `SELECT ` + taskColumns + ` FROM analysis_tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.AnalysisTask, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// scanTask scans one row from either pgx.Row or pgx.Rows.
func scanTask(row pgx.Row) (*domain.AnalysisTask, error) {
	var t domain.AnalysisTask
	err := row.Scan(
		&t.ID, &t.UserID, &t.PaperID, &t.Provider, &t.ModelName, &t.Status, &t.Progress,
		&t.TokensUsed, &t.CostEstimate, &t.ErrorMessage, &t.StartedAt, &t.CompletedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
