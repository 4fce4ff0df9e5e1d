package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

const paperColumns = `id, external_id, title, authors, abstract, full_text,
			published_at, source, source_url, category, keywords,
			created_at, updated_at`

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// paperArgs returns the insert arguments for paper in column order.
func paperArgs(paper *domain.Paper, now time.Time) ([]interface{}, error) {
	authorsJSON, err := json.Marshal(nonNilStrings(paper.Authors))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}
	keywordsJSON, err := json.Marshal(nonNilStrings(paper.Keywords))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}

	var fullText *string
	if paper.HasFullText() {
		fullText = &paper.FullText
	}

	return []interface{}{
		paper.ExternalID, paper.Title, authorsJSON, paper.Abstract, fullText,
		paper.PublicationDate, paper.Source, paper.SourceURL, paper.Category, keywordsJSON,
		now, now,
	}, nil
}

func validatePaper(paper *domain.Paper) error {
	if paper == nil {
		return domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.ExternalID == "" {
		return domain.NewValidationError("external_id", "external ID is required")
	}
	if paper.Title == "" {
		return domain.NewValidationError("title", "title is required")
	}
	return nil
}

const insertPaperQuery = `
		INSERT INTO papers (
			external_id, title, authors, abstract, full_text,
			published_at, source, source_url, category, keywords,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Create inserts a new paper.
func (r *PgPaperRepository) Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if err := validatePaper(paper); err != nil {
		return nil, err
	}

	args, err := paperArgs(paper, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx, insertPaperQuery+" RETURNING id, created_at, updated_at", args...).
		Scan(&paper.ID, &paper.CreatedAt, &paper.UpdatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.NewAlreadyExistsError(domain.EntityPaper, paper.ExternalID)
		}
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}

	return paper, nil
}

// GetByID retrieves a paper by its ID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id int64) (*domain.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = $1`

	paper, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityPaper, strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}
	return paper, nil
}

// GetByExternalID retrieves a paper by its source identifier.
func (r *PgPaperRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Paper, error) {
	if externalID == "" {
		return nil, domain.NewValidationError("external_id", "external ID is required")
	}

	query := `SELECT ` + paperColumns + ` FROM papers WHERE external_id = $1`

	paper, err := scanPaper(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityPaper, externalID)
		}
		return nil, fmt.Errorf("failed to get paper by external ID: %w", err)
	}
	return paper, nil
}

// InsertNew inserts papers with unseen external IDs.
// Uses pgx.Batch to send all inserts in a single network roundtrip.
func (r *PgPaperRepository) InsertNew(ctx context.Context, papers []*domain.Paper) ([]*domain.Paper, error) {
	if len(papers) == 0 {
		return []*domain.Paper{}, nil
	}

	for i, paper := range papers {
		if err := validatePaper(paper); err != nil {
			return nil, fmt.Errorf("paper at index %d: %w", i, err)
		}
	}

	query := insertPaperQuery + `
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, paper := range papers {
		args, err := paperArgs(paper, now)
		if err != nil {
			return nil, err
		}
		batch.Queue(query, args...)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := make([]*domain.Paper, 0, len(papers))
	for i, paper := range papers {
		err := br.QueryRow().Scan(&paper.ID, &paper.CreatedAt, &paper.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // external ID already stored
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert paper at index %d: %w", i, err)
		}
		inserted = append(inserted, paper)
	}

	return inserted, nil
}

// List retrieves papers matching the filter criteria.
func (r *PgPaperRepository) List(ctx context.Context, filter domain.PaperFilter) ([]*domain.Paper, int64, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR abstract ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("published_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.Until != nil {
		conditions = append(conditions, fmt.Sprintf("published_at <= $%d", argIndex))
		args = append(args, *filter.Until)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int64
	countQuery := "SELECT COUNT(*) FROM papers " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	order := "DESC"
	if filter.Oldest {
		order = "ASC"
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM papers %s ORDER BY published_at %s, id %s LIMIT $%d OFFSET $%d`,
		paperColumns, whereClause, order, order, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]*domain.Paper, 0, filter.Limit)
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, totalCount, nil
}

// paperScanDest holds the destination pointers for scanning a Paper row.
type paperScanDest struct {
	paper        domain.Paper
	authorsJSON  []byte
	keywordsJSON []byte
	fullText     *string
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.ExternalID, &d.paper.Title, &d.authorsJSON, &d.paper.Abstract, &d.fullText,
		&d.paper.PublicationDate, &d.paper.Source, &d.paper.SourceURL, &d.paper.Category, &d.keywordsJSON,
		&d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields.
func (d *paperScanDest) finalize() (*domain.Paper, error) {
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}
	if len(d.keywordsJSON) > 0 {
		if err := json.Unmarshal(d.keywordsJSON, &d.paper.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	if d.fullText != nil {
		d.paper.FullText = *d.fullText
	}
	return &d.paper, nil
}

// scanPaper scans one row from either pgx.Row or pgx.Rows.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isPgForeignKeyViolation checks if the error is a PostgreSQL foreign key violation.
func isPgForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
