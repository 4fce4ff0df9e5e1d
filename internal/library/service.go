// Package library stores papers fetched from sources or uploaded by users and
// serves the paper listings and detail views.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/observability"
	"github.com/helixir/paper-analysis-service/internal/papersources"
	"github.com/helixir/paper-analysis-service/internal/repository"
)

// Local upload constants.
const (
	LocalCategory   = "local-upload"
	localIDPrefix   = "local-"
	localURLScheme  = "local://"
	unknownAuthor   = "Unknown"
	minAbstractLen  = 10
	SortNewest      = "newest"
	SortOldest      = "oldest"
	defaultPageSize = 20
)

// EventPublisher emits papers.fetched events.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// FetchResult is the outcome of FetchAndStore.
type FetchResult struct {
	// Papers holds everything the source returned, stored or not.
	Papers []*domain.Paper
	// StoredIDs holds the IDs of papers inserted by this call.
	StoredIDs []int64
}

// UploadInput describes a paper supplied by a user.
type UploadInput struct {
	Title        string `json:"title" validate:"required,max=1000"`
	Authors      string `json:"authors"`
	Abstract     string `json:"abstract" validate:"required"`
	Introduction string `json:"introduction"`
	FullText     string `json:"full_text"`
	FileName     string `json:"file_name" validate:"required,max=255"`
}

// ListQuery filters the paper listing.
type ListQuery struct {
	Limit    int
	Offset   int
	Category string
	Search   string
	Sort     string
	Range    *domain.DateRange
}

// Detail is one paper with its report, if it has been analysed.
type Detail struct {
	Paper  *domain.Paper
	Report *domain.AnalysisReport
}

// Service implements the paper library operations.
type Service struct {
	store     *repository.Store
	source    papersources.PaperSource
	publisher EventPublisher
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a library service. A nil publisher disables events.
func NewService(store *repository.Store, source papersources.PaperSource, publisher EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		source:    source,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "library").Logger(),
		now:       time.Now,
	}
}

// FetchAndStore fetches papers from the source and inserts the ones whose
// external ID is not stored yet.
func (s *Service) FetchAndStore(ctx context.Context, params papersources.FetchParams) (*FetchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	source := string(s.source.SourceType())
	logger := observability.WithSearchContext(s.logger, params.Query, source)

	papers, err := s.source.FetchPapers(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("paper fetch failed")
		return nil, err
	}

	inserted, err := s.store.Papers.InsertNew(ctx, papers)
	if err != nil {
		return nil, fmt.Errorf("store fetched papers: %w", err)
	}

	ids := make([]int64, 0, len(inserted))
	for _, p := range inserted {
		ids = append(ids, p.ID)
	}

	logger.Info().
		Int("fetched", len(papers)).
		Int("stored", len(ids)).
		Int("skipped", len(papers)-len(ids)).
		Msg("papers fetched")

	s.publish(ctx, domain.PapersFetchedPayload{
		Source:  s.source.SourceType(),
		Query:   params.Query,
		Fetched: len(papers),
		Stored:  len(ids),
	})

	return &FetchResult{Papers: papers, StoredIDs: ids}, nil
}

// UploadLocal stores a user-supplied paper.
func (s *Service) UploadLocal(ctx context.Context, in UploadInput) (*domain.Paper, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}
	if len([]rune(in.Abstract)) < minAbstractLen {
		return nil, domain.NewValidationError("abstract", "must be at least 10 characters")
	}

	now := s.now().UTC()
	paper := &domain.Paper{
		ExternalID:      fmt.Sprintf("%s%d", localIDPrefix, now.UnixMilli()),
		Title:           in.Title,
		Authors:         parseAuthors(in.Authors),
		Abstract:        in.Abstract,
		FullText:        combineFullText(in),
		PublicationDate: now,
		Source:          domain.SourceTypeLocal,
		SourceURL:       localURLScheme + in.FileName,
		Category:        LocalCategory,
	}

	created, err := s.store.Papers.Create(ctx, paper)
	if err != nil {
		return nil, err
	}

	logger := observability.WithPaperContext(s.logger, created.ID, created.ExternalID)
	logger.Info().Str("file_name", in.FileName).Msg("local paper uploaded")
	return created, nil
}

// List returns one page of papers and the total match count.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*domain.Paper, int64, error) {
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit < 1 || q.Limit > 100 {
		return nil, 0, domain.NewValidationError("limit", "must be between 1 and 100")
	}
	if q.Offset < 0 {
		return nil, 0, domain.NewValidationError("offset", "must not be negative")
	}

	filter := domain.PaperFilter{
		Category: q.Category,
		Search:   strings.TrimSpace(q.Search),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	switch q.Sort {
	case "", SortNewest:
	case SortOldest:
		filter.Oldest = true
	default:
		return nil, 0, domain.NewValidationError("sort", "must be newest or oldest")
	}
	if q.Range != nil {
		filter.From = q.Range.Start
		filter.Until = q.Range.End
	}

	return s.store.Papers.List(ctx, filter)
}

// Detail returns a paper and its report. Report is nil when none exists.
func (s *Service) Detail(ctx context.Context, paperID int64) (*Detail, error) {
	paper, err := s.store.Papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, err
	}

	report, err := s.store.Reports.GetByPaperID(ctx, paperID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return &Detail{Paper: paper, Report: report}, nil
}

func (s *Service) publish(ctx context.Context, payload domain.PapersFetchedPayload) {
	if s.publisher == nil {
		return
	}
	event, err := domain.NewEvent(domain.EventTypePapersFetched, string(payload.Source), "paper_source", payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to build papers.fetched event")
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.EventType).Msg("failed to publish event")
	}
}

func parseAuthors(raw string) []string {
	authors := make([]string, 0)
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	if len(authors) == 0 {
		return []string{unknownAuthor}
	}
	return authors
}

func combineFullText(in UploadInput) string {
	var b strings.Builder
	b.WriteString("# 摘要\n\n" + in.Abstract + "\n\n")
	if strings.TrimSpace(in.Introduction) != "" {
		b.WriteString("# 引言\n\n" + in.Introduction + "\n\n")
	}
	if strings.TrimSpace(in.FullText) != "" {
		b.WriteString("# 正文\n\n" + in.FullText + "\n\n")
	}
	return b.String()
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		if field == "filename" {
			field = "file_name"
		}
		if fe.Tag() == "required" {
			return domain.NewValidationError(field, "is required")
		}
		return domain.NewValidationError(field, "must be at most "+fe.Param()+" characters")
	}
	return domain.NewValidationError("request", err.Error())
}
