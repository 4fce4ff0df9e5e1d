package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const reportColumns = `id, paper_id, background, what, why, how, how_why, summary,
			status, generated_at, created_at, updated_at`

// Compile-time interface verification.
var _ ReportRepository = (*PgReportRepository)(nil)

// PgReportRepository is a PostgreSQL implementation of ReportRepository.
type PgReportRepository struct {
	db DBTX
}

// NewPgReportRepository creates a new PostgreSQL report repository.
func NewPgReportRepository(db DBTX) *PgReportRepository {
	return &PgReportRepository{db: db}
}

// GetByPaperID retrieves the report of a paper.
func (r *PgReportRepository) GetByPaperID(ctx context.Context, paperID int64) (*domain.AnalysisReport, error) {
	query := `SELECT ` + reportColumns + ` FROM analysis_reports WHERE paper_id = $1`

	report, err := scanReport(r.db.QueryRow(ctx, query, paperID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityReport, strconv.FormatInt(paperID, 10))
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

const insertReportQuery = `
		INSERT INTO analysis_reports (
			paper_id, background, what, why, how, how_why, summary,
			status, generated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

func reportArgs(report *domain.AnalysisReport, now time.Time) []interface{} {
	s := report.ReportSections
	return []interface{}{
		report.PaperID, s.Background, s.What, s.Why, s.How, s.HowWhy, s.Summary,
		report.Status, report.GeneratedAt, now,
	}
}

// Create inserts a report.
func (r *PgReportRepository) Create(ctx context.Context, report *domain.AnalysisReport) (*domain.AnalysisReport, error) {
	if report == nil {
		return nil, domain.NewValidationError("report", "report cannot be nil")
	}

	err := r.db.QueryRow(ctx, insertReportQuery+" RETURNING id, created_at, updated_at",
		reportArgs(report, time.Now().UTC())...,
	).Scan(&report.ID, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.NewAlreadyExistsError(domain.EntityReport, strconv.FormatInt(report.PaperID, 10))
		}
		if isPgForeignKeyViolation(err) {
			return nil, domain.NewNotFoundError(domain.EntityPaper, strconv.FormatInt(report.PaperID, 10))
		}
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}
	return report, nil
}

// Update applies the non-nil fields of upd.
func (r *PgReportRepository) Update(ctx context.Context, id int64, upd domain.ReportUpdate) (*domain.AnalysisReport, error) {
	var s domain.ReportSections
	hasSections := upd.Sections != nil
	if hasSections {
		s = *upd.Sections
	}

	query := `
		UPDATE analysis_reports SET
			background = CASE WHEN $2 THEN $3 ELSE background END,
			what = CASE WHEN $2 THEN $4 ELSE what END,
			why = CASE WHEN $2 THEN $5 ELSE why END,
			how = CASE WHEN $2 THEN $6 ELSE how END,
			how_why = CASE WHEN $2 THEN $7 ELSE how_why END,
			summary = CASE WHEN $2 THEN $8 ELSE summary END,
			status = COALESCE($9, status),
			generated_at = COALESCE($10, generated_at),
			updated_at = $11
		WHERE id = $1
		RETURNING ` + reportColumns

	report, err := scanReport(r.db.QueryRow(ctx, query,
		id, hasSections, s.Background, s.What, s.Why, s.How, s.HowWhy, s.Summary,
		upd.Status, upd.GeneratedAt, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityReport, strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to update report: %w", err)
	}
	return report, nil
}

// Upsert writes the paper's report, replacing any previous one. Concurrent
// writers for the same paper race and the last statement wins.
func (r *PgReportRepository) Upsert(ctx context.Context, report *domain.AnalysisReport) (*domain.AnalysisReport, error) {
	if report == nil {
		return nil, domain.NewValidationError("report", "report cannot be nil")
	}

	query := insertReportQuery + `
		ON CONFLICT (paper_id) DO UPDATE SET
			background = EXCLUDED.background,
			what = EXCLUDED.what,
			why = EXCLUDED.why,
			how = EXCLUDED.how,
			how_why = EXCLUDED.how_why,
			summary = EXCLUDED.summary,
			status = EXCLUDED.status,
			generated_at = EXCLUDED.generated_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, reportArgs(report, time.Now().UTC())...).
		Scan(&report.ID, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return nil, domain.NewNotFoundError(domain.EntityPaper, strconv.FormatInt(report.PaperID, 10))
		}
		return nil, fmt.Errorf("failed to upsert report: %w", err)
	}
	return report, nil
}

// scanReport scans one row from either pgx.Row or pgx.Rows.
func scanReport(row pgx.Row) (*domain.AnalysisReport, error) {
	var rep domain.AnalysisReport
	s := &rep.ReportSections
	err := row.Scan(
		&rep.ID, &rep.PaperID, &s.Background, &s.What, &s.Why, &s.How, &s.HowWhy, &s.Summary,
		&rep.Status, &rep.GeneratedAt, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
