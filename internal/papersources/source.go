// Package papersources provides clients for fetching paper metadata from
// external academic indexes.
//
// Each index implements PaperSource. Retry behavior is owned by the source
// implementation because every index throttles differently; the shared
// HTTPClient only applies client-side rate limiting.
//
// Example usage:
//
//	source := arxiv.New(cfg, logger, metrics)
//	papers, err := source.FetchPapers(ctx, papersources.FetchParams{
//		Query:      "time series forecasting",
//		MaxResults: 20,
//	})
package papersources

import (
	"context"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const (
	// MinMaxResults is the smallest accepted result count per fetch.
	MinMaxResults = 1

	// MaxMaxResults is the largest accepted result count per fetch.
	MaxMaxResults = 50
)

// FetchParams defines the parameters for one fetch call.
type FetchParams struct {
	// Query is matched against title or abstract (required).
	Query string

	// MaxResults bounds the result count; must be within 1..50.
	MaxResults int

	// DateRange optionally restricts the submission date. A missing start
	// defaults to one year ago and a missing end defaults to today.
	DateRange *domain.DateRange
}

// Validate checks the parameters before any network call.
func (p FetchParams) Validate() error {
	if p.Query == "" {
		return domain.NewValidationError("query", "cannot be empty")
	}
	if p.MaxResults < MinMaxResults || p.MaxResults > MaxMaxResults {
		return domain.NewValidationError("max_results", "must be between 1 and 50")
	}
	if p.DateRange != nil && p.DateRange.Start != nil && p.DateRange.End != nil &&
		p.DateRange.End.Before(*p.DateRange.Start) {
		return domain.NewValidationError("date_range", "end must not be before start")
	}
	return nil
}

// PaperSource defines the interface that all paper source clients must implement.
type PaperSource interface {
	// FetchPapers returns papers matching params, newest submission first.
	// Zero matches yield an empty slice and a nil error.
	//
	// Implementations should:
	//   - Respect context cancellation, including during retry waits
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.Paper
	//   - Include appropriate error wrapping with source context
	FetchPapers(ctx context.Context, params FetchParams) ([]*domain.Paper, error)

	// SourceType returns the type identifier for this paper source.
	SourceType() domain.SourceType
}

// FetchRecorder receives fetch telemetry. observability.Metrics implements it.
type FetchRecorder interface {
	RecordSourceRequest(source, status string)
	RecordSourceRetry(source, reason string)
	RecordPapersFetched(source string, count int)
}

// NopRecorder discards fetch telemetry.
type NopRecorder struct{}

// RecordSourceRequest implements FetchRecorder.
func (NopRecorder) RecordSourceRequest(string, string) {}

// RecordSourceRetry implements FetchRecorder.
func (NopRecorder) RecordSourceRetry(string, string) {}

// RecordPapersFetched implements FetchRecorder.
func (NopRecorder) RecordPapersFetched(string, int) {}
