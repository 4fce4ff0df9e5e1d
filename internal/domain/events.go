package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for analysis lifecycle events.
const (
	EventTypeAnalysisStarted   = "analysis.started"
	EventTypeAnalysisCompleted = "analysis.completed"
	EventTypeAnalysisFailed    = "analysis.failed"
	EventTypePapersFetched     = "papers.fetched"
)

// Event is a lifecycle notification published to the event bus.
type Event struct {
	EventID       string          `json:"event_id"`
	EventVersion  int             `json:"event_version"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent creates a new event with the given parameters.
// The payload is JSON-serialized automatically.
func NewEvent(eventType, aggregateID, aggregateType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// AnalysisStartedPayload is the payload for analysis.started events.
type AnalysisStartedPayload struct {
	TaskID    uuid.UUID `json:"task_id"`
	UserID    int64     `json:"user_id"`
	PaperID   int64     `json:"paper_id"`
	Provider  Provider  `json:"provider"`
	ModelName string    `json:"model_name"`
}

// AnalysisCompletedPayload is the payload for analysis.completed events.
type AnalysisCompletedPayload struct {
	TaskID       uuid.UUID `json:"task_id"`
	PaperID      int64     `json:"paper_id"`
	Provider     Provider  `json:"provider"`
	TokensUsed   int       `json:"tokens_used"`
	CostEstimate float64   `json:"cost_estimate"`
	DurationMs   int64     `json:"duration_ms"`
}

// AnalysisFailedPayload is the payload for analysis.failed events.
type AnalysisFailedPayload struct {
	TaskID       uuid.UUID `json:"task_id"`
	PaperID      int64     `json:"paper_id"`
	Provider     Provider  `json:"provider"`
	ErrorMessage string    `json:"error_message"`
}

// PapersFetchedPayload is the payload for papers.fetched events.
type PapersFetchedPayload struct {
	Source  SourceType `json:"source"`
	Query   string     `json:"query"`
	Fetched int        `json:"fetched"`
	Stored  int        `json:"stored"`
}
