// Package arxiv implements the arXiv Atom API paper source.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit keeps to arXiv's one request per three seconds guidance.
	DefaultRateLimit = 1.0 / 3

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of HTTP attempts per fetch.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the base retry delay. Rate-limited attempts wait
	// RetryDelay*attempt, other failures wait RetryDelay.
	DefaultRetryDelay = 3 * time.Second

	sourceName = "arxiv"

	maxFeedBytes = 10 << 20
)

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxAttempts is the number of HTTP attempts per fetch.
	MaxAttempts int

	// RetryDelay is the base delay between attempts.
	RetryDelay time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Client implements papersources.PaperSource for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	recorder   papersources.FetchRecorder

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Ensure Client implements PaperSource interface.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
// A nil recorder disables fetch metrics.
func New(cfg Config, logger zerolog.Logger, recorder papersources.FetchRecorder) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: cfg.UserAgent,
	})

	return NewWithHTTPClient(cfg, httpClient, logger, recorder)
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, recorder papersources.FetchRecorder) *Client {
	cfg.applyDefaults()
	if recorder == nil {
		recorder = papersources.NopRecorder{}
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "arxiv").Logger(),
		recorder:   recorder,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// attemptOutcome classifies one HTTP attempt.
type attemptOutcome int

const (
	outcomeOK attemptOutcome = iota
	outcomeRateLimited
	outcomeHTTPError
	outcomeFailed
)

// FetchPapers queries arXiv for papers whose title or abstract match params.Query.
//
// Up to MaxAttempts requests are made. A 429 waits RetryDelay*attempt and,
// once attempts run out, fails with *domain.RateLimitError. Any other non-2xx
// status waits RetryDelay and, on the final attempt, yields an empty result.
// Transport and decode failures wait RetryDelay*attempt and are returned on
// the final attempt.
func (c *Client) FetchPapers(ctx context.Context, params papersources.FetchParams) ([]*domain.Paper, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	maxAttempts := c.config.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log := c.logger.With().Int("attempt", attempt).Int("max_attempts", maxAttempts).Logger()
		log.Debug().Str("url", searchURL).Msg("fetching from arXiv")

		papers, outcome, err := c.attempt(ctx, searchURL)
		final := attempt == maxAttempts

		switch outcome {
		case outcomeOK:
			c.recorder.RecordSourceRequest(sourceName, "ok")
			c.recorder.RecordPapersFetched(sourceName, len(papers))
			log.Info().Int("papers", len(papers)).Msg("arXiv fetch succeeded")
			return papers, nil

		case outcomeRateLimited:
			c.recorder.RecordSourceRequest(sourceName, "rate_limited")
			if final {
				log.Error().Msg("arXiv rate limit persisted, giving up")
				return nil, domain.NewRateLimitError(sourceName, maxAttempts)
			}
			delay := c.config.RetryDelay * time.Duration(attempt)
			log.Warn().Dur("delay", delay).Msg("arXiv rate limited, backing off")
			c.recorder.RecordSourceRetry(sourceName, "rate_limited")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case outcomeHTTPError:
			c.recorder.RecordSourceRequest(sourceName, "http_error")
			if final {
				log.Error().Err(err).Msg("arXiv returned an error on the final attempt, returning no papers")
				return []*domain.Paper{}, nil
			}
			log.Warn().Err(err).Dur("delay", c.config.RetryDelay).Msg("arXiv returned an error, retrying")
			c.recorder.RecordSourceRetry(sourceName, "http_error")
			if err := c.sleep(ctx, c.config.RetryDelay); err != nil {
				return nil, err
			}

		case outcomeFailed:
			c.recorder.RecordSourceRequest(sourceName, "failed")
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if final {
				log.Error().Err(err).Msg("all arXiv attempts failed")
				return nil, fmt.Errorf("arxiv: all %d attempts failed: %w: %w", maxAttempts, domain.ErrServiceUnavailable, err)
			}
			delay := c.config.RetryDelay * time.Duration(attempt)
			log.Warn().Err(err).Dur("delay", delay).Msg("arXiv attempt failed, retrying")
			c.recorder.RecordSourceRetry(sourceName, "failed")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return []*domain.Paper{}, nil
}

// attempt performs one request and decodes a successful feed.
func (c *Client) attempt(ctx context.Context, searchURL string) ([]*domain.Paper, attemptOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, outcomeFailed, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, outcomeFailed, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil, outcomeRateLimited, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, outcomeHTTPError, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, outcomeFailed, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]*domain.Paper, 0, len(feed.Entries))
	for i := range feed.Entries {
		if paper := entryToPaper(&feed.Entries[i]); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers, outcomeOK, nil
}

// buildSearchURL constructs the arXiv query URL.
func (c *Client) buildSearchURL(params papersources.FetchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	query := url.Values{}
	query.Set("search_query", c.buildSearchQuery(params))
	query.Set("start", "0")
	query.Set("max_results", strconv.Itoa(params.MaxResults))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// buildSearchQuery matches the phrase against title or abstract and appends
// the submission date filter when a range is given.
func (c *Client) buildSearchQuery(params papersources.FetchParams) string {
	phrase := strings.ReplaceAll(strings.TrimSpace(params.Query), `"`, "")
	q := fmt.Sprintf(`(ti:"%s" OR abs:"%s")`, phrase, phrase)

	if !params.DateRange.IsZero() {
		q += " AND " + c.buildDateFilter(params.DateRange)
	}
	return q
}

// buildDateFilter constructs the arXiv date filter string.
func (c *Client) buildDateFilter(r *domain.DateRange) string {
	now := c.now().UTC()

	from := now.AddDate(-1, 0, 0)
	if r.Start != nil {
		from = r.Start.UTC()
	}
	to := now
	if r.End != nil {
		to = r.End.UTC()
	}

	return fmt.Sprintf("submittedDate:[%s0000 TO %s2359]", from.Format("20060102"), to.Format("20060102"))
}

// entryToPaper converts an arXiv Atom entry to a domain Paper.
// Entries without an id, title, abstract or a parseable publish date are skipped.
func entryToPaper(entry *Entry) *domain.Paper {
	arxivID := extractArXivID(strings.TrimSpace(entry.ID))
	title := decodeEntities(normalizeWhitespace(entry.Title))
	abstract := decodeEntities(strings.TrimSpace(entry.Summary))
	if arxivID == "" || title == "" || abstract == "" {
		return nil
	}

	published, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published))
	if err != nil {
		return nil
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := decodeEntities(strings.TrimSpace(a.Name)); name != "" {
			authors = append(authors, name)
		}
	}

	return &domain.Paper{
		ExternalID:      arxivID,
		Title:           title,
		Authors:         authors,
		Abstract:        abstract,
		PublicationDate: published,
		Source:          domain.SourceTypeArXiv,
		SourceURL:       "https://arxiv.org/abs/" + arxivID,
		Category:        entry.PrimaryCategory.Term,
		Keywords:        extractKeywords(abstract),
	}
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// sleepContext waits for d, respecting context cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
