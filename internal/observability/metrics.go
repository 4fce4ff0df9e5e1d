package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper analysis service.
// Metrics are organized by subsystem: analysis jobs, LLM calls, paper sources
// and the HTTP API.
type Metrics struct {
	// JobsStarted counts analysis jobs created, labeled by provider.
	JobsStarted *prometheus.CounterVec

	// JobsCompleted counts analysis jobs that produced a report, labeled by provider.
	JobsCompleted *prometheus.CounterVec

	// JobsFailed counts analysis jobs that ended in the failed state, labeled by provider.
	JobsFailed *prometheus.CounterVec

	// JobDuration observes job run time in seconds, labeled by provider and terminal status.
	JobDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts chat calls, labeled by provider and outcome.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMTokensTotal counts tokens reported by vendors, labeled by provider.
	LLMTokensTotal *prometheus.CounterVec

	// LLMCostTotal accumulates estimated USD cost, labeled by provider.
	LLMCostTotal *prometheus.CounterVec

	// SourceRequestsTotal counts paper source HTTP attempts, labeled by source and outcome.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRetriesTotal counts paper source retries, labeled by source and reason.
	SourceRetriesTotal *prometheus.CounterVec

	// SourcePapersFetched counts papers parsed from source responses, labeled by source.
	SourcePapersFetched *prometheus.CounterVec

	// HTTPRequestsTotal counts API requests, labeled by method, route pattern and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API latency in seconds, labeled by method and route pattern.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Analysis jobs
		JobsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_started_total",
			Help:      "Total number of analysis jobs started",
		}, []string{"provider"}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_completed_total",
			Help:      "Total number of analysis jobs completed successfully",
		}, []string{"provider"}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_failed_total",
			Help:      "Total number of analysis jobs that failed",
		}, []string{"provider"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_job_duration_seconds",
			Help:      "Duration of analysis jobs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider", "status"}),

		// LLM
		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM chat requests by provider and status",
		}, []string{"provider", "status"}),
		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total number of tokens used by LLM requests",
		}, []string{"provider"}),
		LLMCostTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated LLM cost in USD",
		}, []string{"provider"}),

		// Sources
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source", "status"}),
		SourceRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_retries_total",
			Help:      "Total number of retried requests to paper sources",
		}, []string{"source", "reason"}),
		SourcePapersFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_papers_fetched_total",
			Help:      "Total number of papers fetched from paper sources",
		}, []string{"source"}),

		// HTTP
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordJobStarted records that an analysis job has started.
func (m *Metrics) RecordJobStarted(provider string) {
	m.JobsStarted.WithLabelValues(provider).Inc()
}

// RecordJobFinished records a job reaching a terminal status.
func (m *Metrics) RecordJobFinished(provider, status string, durationSeconds float64) {
	switch status {
	case "completed":
		m.JobsCompleted.WithLabelValues(provider).Inc()
	case "failed":
		m.JobsFailed.WithLabelValues(provider).Inc()
	}
	m.JobDuration.WithLabelValues(provider, status).Observe(durationSeconds)
}

// RecordLLMRequest records the outcome of a chat call.
func (m *Metrics) RecordLLMRequest(provider, status string) {
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordLLMUsage records tokens and estimated cost of a chat call.
func (m *Metrics) RecordLLMUsage(provider string, tokens int, cost float64) {
	m.LLMTokensTotal.WithLabelValues(provider).Add(float64(tokens))
	m.LLMCostTotal.WithLabelValues(provider).Add(cost)
}

// RecordSourceRequest records one request attempt to a paper source.
func (m *Metrics) RecordSourceRequest(source, status string) {
	m.SourceRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordSourceRetry records a retried request to a paper source.
func (m *Metrics) RecordSourceRetry(source, reason string) {
	m.SourceRetriesTotal.WithLabelValues(source, reason).Inc()
}

// RecordPapersFetched records papers parsed from a source response.
func (m *Metrics) RecordPapersFetched(source string, count int) {
	m.SourcePapersFetched.WithLabelValues(source).Add(float64(count))
}

// RecordHTTPRequest records a served API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
