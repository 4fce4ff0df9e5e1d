package arxiv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/papersources"
)

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>%d</opensearch:totalResults>
`

const entryTemplate = `  <entry>
    <id>http://arxiv.org/abs/2401.0000%dv2</id>
    <published>2024-01-1%dT10:00:00Z</published>
    <title>Forecasting   Paper %d</title>
    <summary>Transformers improve forecasting accuracy for multivariate signals.</summary>
    <author><name>Alice Smith</name></author>
    <author><name>Bob Jones</name></author>
    <arxiv:primary_category term="cs.LG"/>
  </entry>
`

func feedWithEntries(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, feedHeader, n)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, entryTemplate, i, i%10, i)
	}
	b.WriteString("</feed>")
	return b.String()
}

// recordingRecorder captures fetch telemetry.
type recordingRecorder struct {
	mu       sync.Mutex
	requests []string
	retries  []string
	fetched  int
}

func (r *recordingRecorder) RecordSourceRequest(_, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, status)
}

func (r *recordingRecorder) RecordSourceRetry(_, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, reason)
}

func (r *recordingRecorder) RecordPapersFetched(_ string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched += count
}

// newTestClient builds a client against baseURL that records sleeps instead of waiting.
func newTestClient(t *testing.T, baseURL string, recorder papersources.FetchRecorder) (*Client, *[]time.Duration) {
	t.Helper()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		BurstSize: 10,
	})
	c := NewWithHTTPClient(Config{BaseURL: baseURL}, httpClient, zerolog.Nop(), recorder)

	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	c.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return c, &sleeps
}

func defaultParams() papersources.FetchParams {
	return papersources.FetchParams{Query: "time series", MaxResults: 10}
}

func TestFetchPapers_Success(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(feedWithEntries(3)))
	}))
	defer server.Close()

	rec := &recordingRecorder{}
	c, sleeps := newTestClient(t, server.URL, rec)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.NoError(t, err)
	require.Len(t, papers, 3)
	assert.Empty(t, *sleeps)
	assert.Equal(t, []string{"ok"}, rec.requests)
	assert.Equal(t, 3, rec.fetched)

	assert.Contains(t, gotQuery, "max_results=10")
	assert.Contains(t, gotQuery, "sortBy=submittedDate")
	assert.Contains(t, gotQuery, "sortOrder=descending")

	p := papers[0]
	assert.Equal(t, "2401.00001", p.ExternalID)
	assert.Equal(t, "Forecasting Paper 1", p.Title)
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, p.Authors)
	assert.Equal(t, "cs.LG", p.Category)
	assert.Equal(t, domain.SourceTypeArXiv, p.Source)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", p.SourceURL)
	assert.Equal(t, time.Date(2024, 1, 11, 10, 0, 0, 0, time.UTC), p.PublicationDate)
	assert.Equal(t, []string{"transformers", "improve", "forecasting", "accuracy", "multivariate"}, p.Keywords)
}

func TestFetchPapers_RateLimitedThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(feedWithEntries(5)))
	}))
	defer server.Close()

	rec := &recordingRecorder{}
	c, sleeps := newTestClient(t, server.URL, rec)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.Len(t, papers, 5)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{DefaultRetryDelay}, *sleeps)
	assert.Equal(t, []string{"rate_limited"}, rec.retries)
}

func TestFetchPapers_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, sleeps := newTestClient(t, server.URL, nil)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.Error(t, err)
	assert.Nil(t, papers)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{DefaultRetryDelay, 2 * DefaultRetryDelay}, *sleeps)

	var rlErr *domain.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "arxiv", rlErr.Source)
	assert.Equal(t, 3, rlErr.Attempts)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestFetchPapers_ServerErrorYieldsEmpty(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c, sleeps := newTestClient(t, server.URL, nil)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.Empty(t, papers)
	assert.NotNil(t, papers)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, *sleeps)
}

func TestFetchPapers_MalformedFeedFailsAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<feed><entry>"))
	}))
	defer server.Close()

	c, sleeps := newTestClient(t, server.URL, nil)

	_, err := c.FetchPapers(context.Background(), defaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrServiceUnavailable))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{DefaultRetryDelay, 2 * DefaultRetryDelay}, *sleeps)
}

func TestFetchPapers_NetworkErrorOnFinalAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c, _ := newTestClient(t, baseURL, nil)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.Error(t, err)
	assert.Nil(t, papers)
	assert.True(t, errors.Is(err, domain.ErrServiceUnavailable))
}

func TestFetchPapers_NoEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedWithEntries(0)))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, nil)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.NotNil(t, papers)
	assert.Empty(t, papers)
}

func TestFetchPapers_SkipsIncompleteEntries(t *testing.T) {
	feed := fmt.Sprintf(feedHeader, 2) + `
  <entry>
    <id>http://arxiv.org/abs/2401.11111v1</id>
    <published>2024-01-01T00:00:00Z</published>
    <title></title>
    <summary>Has no title.</summary>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.22222v1</id>
    <published>not-a-date</published>
    <title>Bad date</title>
    <summary>Has a bad date.</summary>
  </entry>
</feed>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, nil)

	papers, err := c.FetchPapers(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestFetchPapers_InvalidParams(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, nil)

	tests := []struct {
		name   string
		params papersources.FetchParams
	}{
		{"empty query", papersources.FetchParams{MaxResults: 10}},
		{"zero results", papersources.FetchParams{Query: "q", MaxResults: 0}},
		{"too many results", papersources.FetchParams{Query: "q", MaxResults: 51}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.FetchPapers(context.Background(), tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestFetchPapers_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, nil)
	c.sleep = sleepContext

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchPapers(ctx, defaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBuildSearchQuery(t *testing.T) {
	c, _ := newTestClient(t, "http://localhost", nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		params papersources.FetchParams
		want   string
	}{
		{
			name:   "phrase only",
			params: papersources.FetchParams{Query: "time series"},
			want:   `(ti:"time series" OR abs:"time series")`,
		},
		{
			name:   "quotes stripped",
			params: papersources.FetchParams{Query: `"anomaly" detection`},
			want:   `(ti:"anomaly detection" OR abs:"anomaly detection")`,
		},
		{
			name:   "full range",
			params: papersources.FetchParams{Query: "lstm", DateRange: &domain.DateRange{Start: &start, End: &end}},
			want:   `(ti:"lstm" OR abs:"lstm") AND submittedDate:[202401010000 TO 202406302359]`,
		},
		{
			name:   "missing start defaults to a year ago",
			params: papersources.FetchParams{Query: "lstm", DateRange: &domain.DateRange{End: &end}},
			want:   `(ti:"lstm" OR abs:"lstm") AND submittedDate:[202403150000 TO 202406302359]`,
		},
		{
			name:   "missing end defaults to now",
			params: papersources.FetchParams{Query: "lstm", DateRange: &domain.DateRange{Start: &start}},
			want:   `(ti:"lstm" OR abs:"lstm") AND submittedDate:[202401010000 TO 202503152359]`,
		},
		{
			name:   "empty range ignored",
			params: papersources.FetchParams{Query: "lstm", DateRange: &domain.DateRange{}},
			want:   `(ti:"lstm" OR abs:"lstm")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.buildSearchQuery(tt.params))
		})
	}
}

func TestExtractArXivID(t *testing.T) {
	tests := map[string]string{
		"http://arxiv.org/abs/2301.12345v1":     "2301.12345",
		"http://arxiv.org/abs/2301.12345":       "2301.12345",
		"http://arxiv.org/abs/hep-th/9901001v3": "hep-th/9901001",
		"https://example.com/other":             "",
	}
	for input, want := range tests {
		assert.Equal(t, want, extractArXivID(input), input)
	}
}

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("This paper uses Time Series data. Forecasting forecasting with LSTM and attention mechanisms for energy demand.")
	assert.Equal(t, []string{"uses", "forecasting", "lstm", "attention", "mechanisms"}, got)

	assert.Empty(t, extractKeywords("a an of to"))
}

func TestDecodeEntities(t *testing.T) {
	assert.Equal(t, `a < b & "c" 'd' 'e' > f`, decodeEntities(`a &lt; b &amp; &quot;c&quot; &apos;d&apos; &#39;e&#39; &gt; f`))
	assert.Equal(t, "&lt;", decodeEntities("&amp;lt;"))
}
