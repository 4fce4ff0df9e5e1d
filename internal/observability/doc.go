// Package observability provides logging and metrics support for the
// paper analysis service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Add task context to a logger:
//
//	logger = observability.WithTaskContext(logger, taskID, paperID, "deepseek")
//
// Request handlers attach the request ID and caller to the context and
// derive loggers from it:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithUserID(ctx, userID)
//	logger := observability.LoggerFromContext(ctx, base)
//
// # Metrics
//
//	metrics := observability.NewMetrics("paper_analysis")
//	metrics.RecordJobStarted("deepseek")
//
// Metrics satisfies papersources.FetchRecorder and analysis.Recorder.
//
// # Standard Fields
//
//   - request_id: HTTP request identifier
//   - user_id: calling user
//   - task_id: analysis task identifier
//   - paper_id: paper identifier
//   - provider: LLM provider name
//   - source: paper source (arxiv, local)
//   - query: source search query
//
// All components are safe for concurrent use from multiple goroutines.
package observability
