package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const (
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 30 * time.Minute
)

// SSE event types.
const (
	sseEventStarted  = "stream_started"
	sseEventProgress = "progress_update"
	sseEventDone     = "completed"
	sseEventTimeout  = "timeout"
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType    string    `json:"event_type"`
	TaskID       string    `json:"task_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// streamProgress handles GET /analyses/{taskID}/progress (SSE).
// It polls the task at the advertised poll interval and sends an event
// whenever the status or progress changes, ending on a terminal status.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadOwnTask(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if task.Status.IsTerminal() {
		sendSSEEvent(w, flusher, taskEvent(sseEventDone, task))
		return
	}

	sendSSEEvent(w, flusher, taskEvent(sseEventStarted, task))

	ctx := r.Context()
	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	lastStatus, lastProgress := task.Status, task.Progress
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: sseEventTimeout,
				TaskID:    task.ID.String(),
				Status:    string(lastStatus),
				Progress:  lastProgress,
				Timestamp: time.Now().UTC(),
			})
			return

		case <-ticker.C:
			current, err := s.analyses.GetTaskStatus(ctx, task.ID)
			if err != nil {
				s.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to poll task status")
				continue
			}

			if current.Status.IsTerminal() {
				sendSSEEvent(w, flusher, taskEvent(sseEventDone, current))
				return
			}
			if current.Status == lastStatus && current.Progress == lastProgress {
				continue
			}
			lastStatus, lastProgress = current.Status, current.Progress
			sendSSEEvent(w, flusher, taskEvent(sseEventProgress, current))
		}
	}
}

func taskEvent(eventType string, t *domain.AnalysisTask) sseEvent {
	return sseEvent{
		EventType:    eventType,
		TaskID:       t.ID.String(),
		Status:       string(t.Status),
		Progress:     t.Progress,
		ErrorMessage: t.ErrorMessage,
		Timestamp:    time.Now().UTC(),
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
