package library

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/papersources"
	"github.com/helixir/paper-analysis-service/internal/repository"
)

type fakeSource struct {
	papers []*domain.Paper
	err    error
	params []papersources.FetchParams
}

func (s *fakeSource) FetchPapers(_ context.Context, params papersources.FetchParams) ([]*domain.Paper, error) {
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*domain.Paper, 0, len(s.papers))
	for _, p := range s.papers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeSource) SourceType() domain.SourceType { return domain.SourceTypeArXiv }

type capturingPublisher struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func arxivPaper(id, title string, published time.Time) *domain.Paper {
	return &domain.Paper{
		ExternalID:      id,
		Title:           title,
		Authors:         []string{"Ada Lovelace"},
		Abstract:        "An abstract about " + title,
		PublicationDate: published,
		Source:          domain.SourceTypeArXiv,
		SourceURL:       "https://arxiv.org/abs/" + id,
		Category:        "cs.LG",
	}
}

func newTestService(source *fakeSource) (*Service, *repository.Store, *capturingPublisher) {
	store := repository.NewMemoryStore()
	pub := &capturingPublisher{}
	return NewService(store, source, pub, zerolog.Nop()), store, pub
}

func TestService_FetchAndStore(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{papers: []*domain.Paper{
		arxivPaper("2403.00001", "Forecasting with Transformers", day),
		arxivPaper("2403.00002", "Anomaly Detection in Streams", day.Add(-time.Hour)),
	}}
	svc, store, pub := newTestService(source)
	ctx := context.Background()

	result, err := svc.FetchAndStore(ctx, papersources.FetchParams{Query: "time series", MaxResults: 10})
	require.NoError(t, err)
	assert.Len(t, result.Papers, 2)
	assert.Len(t, result.StoredIDs, 2)

	// A second fetch of the same papers stores nothing.
	result, err = svc.FetchAndStore(ctx, papersources.FetchParams{Query: "time series", MaxResults: 10})
	require.NoError(t, err)
	assert.Len(t, result.Papers, 2)
	assert.Empty(t, result.StoredIDs)

	_, total, err := store.Papers.List(ctx, domain.PaperFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	require.Len(t, pub.events, 2)
	assert.Equal(t, domain.EventTypePapersFetched, pub.events[0].EventType)
	assert.Contains(t, string(pub.events[1].Payload), `"stored":0`)
}

func TestService_FetchAndStore_Errors(t *testing.T) {
	t.Run("invalid params never reach the source", func(t *testing.T) {
		source := &fakeSource{}
		svc, _, _ := newTestService(source)

		_, err := svc.FetchAndStore(context.Background(), papersources.FetchParams{Query: "", MaxResults: 10})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = svc.FetchAndStore(context.Background(), papersources.FetchParams{Query: "q", MaxResults: 51})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Empty(t, source.params)
	})

	t.Run("rate limit is passed through", func(t *testing.T) {
		source := &fakeSource{err: domain.NewRateLimitError("arxiv", 3)}
		svc, _, pub := newTestService(source)

		_, err := svc.FetchAndStore(context.Background(), papersources.FetchParams{Query: "q", MaxResults: 5})
		var rl *domain.RateLimitError
		assert.True(t, errors.As(err, &rl))
		assert.Empty(t, pub.events)
	})
}

func TestService_UploadLocal(t *testing.T) {
	svc, _, _ := newTestService(&fakeSource{})
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	paper, err := svc.UploadLocal(context.Background(), UploadInput{
		Title:        "  Local Study  ",
		Authors:      "Alice, Bob , ,Carol",
		Abstract:     "A sufficiently long abstract.",
		Introduction: "Why this matters.",
		FileName:     "study.pdf",
	})
	require.NoError(t, err)

	assert.NotZero(t, paper.ID)
	assert.Equal(t, "Local Study", paper.Title)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, paper.Authors)
	assert.Equal(t, "local-1714979289000", paper.ExternalID)
	assert.Equal(t, LocalCategory, paper.Category)
	assert.Equal(t, domain.SourceTypeLocal, paper.Source)
	assert.Equal(t, "local://study.pdf", paper.SourceURL)
	assert.Equal(t, "# 摘要\n\nA sufficiently long abstract.\n\n# 引言\n\nWhy this matters.\n\n", paper.FullText)
	assert.False(t, strings.Contains(paper.FullText, "# 正文"))
}

func TestService_UploadLocal_Validation(t *testing.T) {
	svc, _, _ := newTestService(&fakeSource{})
	ctx := context.Background()

	tests := []struct {
		name  string
		in    UploadInput
		field string
	}{
		{"missing title", UploadInput{Abstract: "long enough abstract", FileName: "a.pdf"}, "title"},
		{"blank title", UploadInput{Title: "   ", Abstract: "long enough abstract", FileName: "a.pdf"}, "title"},
		{"short abstract", UploadInput{Title: "T", Abstract: "too short", FileName: "a.pdf"}, "abstract"},
		{"missing file name", UploadInput{Title: "T", Abstract: "long enough abstract"}, "file_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadLocal(ctx, tt.in)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestParseAuthors(t *testing.T) {
	assert.Equal(t, []string{"Unknown"}, parseAuthors(""))
	assert.Equal(t, []string{"A"}, parseAuthors(" A "))
	assert.Equal(t, []string{"A", "B"}, parseAuthors("A,B"))
	assert.Equal(t, []string{"Unknown"}, parseAuthors(", ,"))
	assert.Equal(t, []string{"Unknown"}, parseAuthors("  ,"))
}

func TestService_UploadLocal_LogsPaper(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(repository.NewMemoryStore(), &fakeSource{}, nil, zerolog.New(&buf))

	paper, err := svc.UploadLocal(context.Background(), UploadInput{
		Title:    "Logged Upload",
		Authors:  " , ",
		Abstract: "A sufficiently long abstract.",
		FileName: "logged.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unknown"}, paper.Authors)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "local paper uploaded", entry["message"])
	assert.Equal(t, float64(paper.ID), entry["paper_id"])
	assert.Equal(t, paper.ExternalID, entry["external_id"])
	assert.Equal(t, "logged.pdf", entry["file_name"])
	assert.Equal(t, "library", entry["component"])
}

func TestCombineFullText(t *testing.T) {
	got := combineFullText(UploadInput{Abstract: "abs", FullText: "body"})
	assert.Equal(t, "# 摘要\n\nabs\n\n# 正文\n\nbody\n\n", got)
}

func TestService_List(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{papers: []*domain.Paper{
		arxivPaper("a", "Old Forecasting", base),
		arxivPaper("b", "Middle Clustering", base.AddDate(0, 1, 0)),
		arxivPaper("c", "New Forecasting", base.AddDate(0, 2, 0)),
	}}
	svc, _, _ := newTestService(source)
	ctx := context.Background()
	_, err := svc.FetchAndStore(ctx, papersources.FetchParams{Query: "q", MaxResults: 3})
	require.NoError(t, err)

	papers, total, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, "c", papers[0].ExternalID)

	papers, _, err = svc.List(ctx, ListQuery{Sort: SortOldest, Limit: 1})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "a", papers[0].ExternalID)

	papers, total, err = svc.List(ctx, ListQuery{Search: "forecasting"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, papers, 2)

	from := base.AddDate(0, 0, 15)
	papers, _, err = svc.List(ctx, ListQuery{Range: &domain.DateRange{Start: &from}})
	require.NoError(t, err)
	assert.Len(t, papers, 2)

	_, _, err = svc.List(ctx, ListQuery{Limit: 101})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, _, err = svc.List(ctx, ListQuery{Sort: "random"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_Detail(t *testing.T) {
	source := &fakeSource{papers: []*domain.Paper{arxivPaper("x", "Paper X", time.Now().UTC())}}
	svc, store, _ := newTestService(source)
	ctx := context.Background()

	result, err := svc.FetchAndStore(ctx, papersources.FetchParams{Query: "q", MaxResults: 1})
	require.NoError(t, err)
	id := result.StoredIDs[0]

	detail, err := svc.Detail(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Paper X", detail.Paper.Title)
	assert.Nil(t, detail.Report)

	_, err = store.Reports.Upsert(ctx, &domain.AnalysisReport{
		PaperID:        id,
		ReportSections: domain.ReportSections{Background: "bg", Summary: "sum"},
		Status:         "completed",
	})
	require.NoError(t, err)

	detail, err = svc.Detail(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, detail.Report)
	assert.Equal(t, "bg", detail.Report.Background)

	_, err = svc.Detail(ctx, 999)
	assert.True(t, domain.IsPaperNotFound(err))
}
