package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

var paperColumnNames = []string{
	"id", "external_id", "title", "authors", "abstract", "full_text",
	"published_at", "source", "source_url", "category", "keywords",
	"created_at", "updated_at",
}

// anyArgs matches n query arguments without checking their values.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// Helper to create a valid paper for testing.
func newTestPaper() *domain.Paper {
	return &domain.Paper{
		ExternalID:      "2401.00001",
		Title:           "Temporal Fusion Transformers",
		Authors:         []string{"Alice Smith", "Bob Jones"},
		Abstract:        "Multi-horizon forecasting with attention.",
		PublicationDate: time.Date(2024, 1, 11, 10, 0, 0, 0, time.UTC),
		Source:          domain.SourceTypeArXiv,
		SourceURL:       "https://arxiv.org/abs/2401.00001",
		Category:        "cs.LG",
		Keywords:        []string{"forecasting", "attention"},
	}
}

func paperRow(rows *pgxmock.Rows, id int64, p *domain.Paper, fullText *string) *pgxmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, p.ExternalID, p.Title, []byte(`["Alice Smith","Bob Jones"]`), p.Abstract, fullText,
		p.PublicationDate, p.Source, p.SourceURL, p.Category, []byte(`["forecasting","attention"]`),
		now, now,
	)
}

func TestPgPaperRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates paper successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()
		now := time.Now().UTC()

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				paper.ExternalID, paper.Title, pgxmock.AnyArg(), paper.Abstract, pgxmock.AnyArg(),
				paper.PublicationDate, paper.Source, paper.SourceURL, paper.Category, pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

		result, err := repo.Create(ctx, paper)
		require.NoError(t, err)
		assert.Equal(t, int64(7), result.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation to already exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(anyArgs(12)...).
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

		_, err = repo.Create(ctx, newTestPaper())
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for missing external id", func(t *testing.T) {
		repo := NewPgPaperRepository(nil)
		paper := newTestPaper()
		paper.ExternalID = ""

		_, err := repo.Create(ctx, paper)
		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "external_id", validationErr.Field)
	})
}

func TestPgPaperRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns paper when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		want := newTestPaper()
		fullText := "# 正文\n\nbody"

		mock.ExpectQuery("SELECT .+ FROM papers WHERE id = \\$1").
			WithArgs(int64(3)).
			WillReturnRows(paperRow(pgxmock.NewRows(paperColumnNames), 3, want, &fullText))

		got, err := repo.GetByID(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.ID)
		assert.Equal(t, want.Authors, got.Authors)
		assert.Equal(t, want.Keywords, got.Keywords)
		assert.Equal(t, fullText, got.FullText)
		assert.Equal(t, domain.SourceTypeArXiv, got.Source)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns paper not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		mock.ExpectQuery("SELECT .+ FROM papers WHERE id").
			WithArgs(int64(99)).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetByID(ctx, 99)
		assert.True(t, domain.IsPaperNotFound(err))
	})
}

func TestPgPaperRepository_GetByExternalID(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)
	want := newTestPaper()

	mock.ExpectQuery("SELECT .+ FROM papers WHERE external_id = \\$1").
		WithArgs(want.ExternalID).
		WillReturnRows(paperRow(pgxmock.NewRows(paperColumnNames), 5, want, nil))

	got, err := repo.GetByExternalID(ctx, want.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
	assert.Empty(t, got.FullText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgPaperRepository_InsertNew(t *testing.T) {
	ctx := context.Background()

	t.Run("returns only newly inserted papers", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		fresh := newTestPaper()
		existing := newTestPaper()
		existing.ExternalID = "2401.00002"
		now := time.Now().UTC()

		batch := mock.ExpectBatch()
		batch.ExpectQuery("INSERT INTO papers .+ ON CONFLICT \\(external_id\\) DO NOTHING").
			WithArgs(
				fresh.ExternalID, fresh.Title, pgxmock.AnyArg(), fresh.Abstract, pgxmock.AnyArg(),
				fresh.PublicationDate, fresh.Source, fresh.SourceURL, fresh.Category, pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
		batch.ExpectQuery("INSERT INTO papers").
			WithArgs(anyArgs(12)...).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}))

		inserted, err := repo.InsertNew(ctx, []*domain.Paper{fresh, existing})
		require.NoError(t, err)
		require.Len(t, inserted, 1)
		assert.Equal(t, fresh.ExternalID, inserted[0].ExternalID)
		assert.Equal(t, int64(1), inserted[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		repo := NewPgPaperRepository(nil)
		inserted, err := repo.InsertNew(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, inserted)
	})
}

func TestPgPaperRepository_List(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM papers WHERE category = \\$1 AND \\(title ILIKE \\$2 OR abstract ILIKE \\$2\\) AND published_at >= \\$3").
		WithArgs("cs.LG", "%50\\%%", from).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("ORDER BY published_at ASC, id ASC LIMIT \\$4 OFFSET \\$5").
		WithArgs("cs.LG", "%50\\%%", from, 10, 0).
		WillReturnRows(paperRow(pgxmock.NewRows(paperColumnNames), 1, newTestPaper(), nil))

	papers, total, err := repo.List(ctx, domain.PaperFilter{
		Category: "cs.LG",
		Search:   "50%",
		From:     &from,
		Oldest:   true,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, papers, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaginationDefaults(t *testing.T) {
	limit, offset := 0, -3
	applyPaginationDefaults(&limit, &offset)
	assert.Equal(t, defaultFilterLimit, limit)
	assert.Equal(t, 0, offset)

	limit = 1000
	applyPaginationDefaults(&limit, &offset)
	assert.Equal(t, maxFilterLimit, limit)
}

func TestPaperScanDest_Finalize(t *testing.T) {
	t.Run("returns error for invalid authors JSON", func(t *testing.T) {
		dest := paperScanDest{authorsJSON: []byte(`{invalid json`)}
		result, err := dest.finalize()
		assert.Nil(t, result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal authors")
	})

	t.Run("destinations match the selected columns", func(t *testing.T) {
		var dest paperScanDest
		assert.Len(t, dest.destinations(), len(paperColumnNames))
	})
}
