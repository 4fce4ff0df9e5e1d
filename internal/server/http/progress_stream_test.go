package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// sequenceAnalyses returns the given task states in order, repeating the last one.
type sequenceAnalyses struct {
	mockAnalysisService
	mu     sync.Mutex
	states []*domain.AnalysisTask
	calls  int
}

func (s *sequenceAnalyses) GetTaskStatus(_ context.Context, _ uuid.UUID) (*domain.AnalysisTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	cp := *s.states[i]
	return &cp, nil
}

func parseSSEEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			t.Fatalf("invalid SSE data %q: %v", line, err)
		}
		events = append(events, e)
	}
	return events
}

func TestStreamProgress_UntilCompleted(t *testing.T) {
	id := uuid.New()
	task := func(status domain.TaskStatus, progress int) *domain.AnalysisTask {
		return &domain.AnalysisTask{ID: id, UserID: 5, Status: status, Progress: progress}
	}
	analyses := &sequenceAnalyses{states: []*domain.AnalysisTask{
		task(domain.TaskStatusPending, 0),
		task(domain.TaskStatusProcessing, 30),
		task(domain.TaskStatusProcessing, 30),
		task(domain.TaskStatusProcessing, 80),
		task(domain.TaskStatusCompleted, 100),
	}}
	srv := newTestHTTPServer(nil, analyses, nil)

	rr := serveHTTP(srv, newUserRequest(http.MethodGet, "/api/v1/analyses/"+id.String()+"/progress", "", "5"))
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	events := parseSSEEvents(t, rr.Body.String())
	var types []string
	var progress []int
	for _, e := range events {
		types = append(types, e.EventType)
		progress = append(progress, e.Progress)
	}
	wantTypes := []string{sseEventStarted, sseEventProgress, sseEventProgress, sseEventDone}
	if strings.Join(types, ",") != strings.Join(wantTypes, ",") {
		t.Fatalf("expected events %v, got %v", wantTypes, types)
	}
	wantProgress := []int{0, 30, 80, 100}
	for i := range wantProgress {
		if progress[i] != wantProgress[i] {
			t.Errorf("event %d: expected progress %d, got %d", i, wantProgress[i], progress[i])
		}
	}
}

func TestStreamProgress_AlreadyTerminal(t *testing.T) {
	id := uuid.New()
	analyses := &sequenceAnalyses{states: []*domain.AnalysisTask{
		{ID: id, UserID: 5, Status: domain.TaskStatusFailed, Progress: 30, ErrorMessage: "openai API error: 401 - bad key"},
	}}
	srv := newTestHTTPServer(nil, analyses, nil)

	rr := serveHTTP(srv, newUserRequest(http.MethodGet, "/api/v1/analyses/"+id.String()+"/progress", "", "5"))
	expectStatus(t, rr, http.StatusOK)

	events := parseSSEEvents(t, rr.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Status != "failed" || events[0].ErrorMessage == "" {
		t.Errorf("unexpected terminal event: %+v", events[0])
	}
}

func TestStreamProgress_OtherUser(t *testing.T) {
	id := uuid.New()
	analyses := &sequenceAnalyses{states: []*domain.AnalysisTask{
		{ID: id, UserID: 5, Status: domain.TaskStatusPending},
	}}
	srv := newTestHTTPServer(nil, analyses, nil)

	rr := serveHTTP(srv, newUserRequest(http.MethodGet, "/api/v1/analyses/"+id.String()+"/progress", "", "6"))
	expectStatus(t, rr, http.StatusNotFound)
}
