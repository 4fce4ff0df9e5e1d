package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/paper-analysis-service/internal/analysis"
	"github.com/helixir/paper-analysis-service/internal/domain"
)

// Pagination and validation constants.
const (
	defaultTaskListLimit = 20
	maxTaskListLimit     = 100
	maxRequestBodySize   = 1 << 20 // 1 MB limit for request bodies
	dateLayout           = "2006-01-02"
)

// startAnalysisRequest is the JSON body of POST /papers/{paperID}/analyses.
type startAnalysisRequest struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty" validate:"omitempty,max=100"`
}

// startAnalysis handles POST /papers/{paperID}/analyses.
// It creates a task and returns immediately; the job runs in the background.
func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	var req startAnalysisRequest
	if r.ContentLength != 0 {
		if !s.decodeBody(w, r, &req) {
			return
		}
	}

	var provider domain.Provider
	if p := strings.TrimSpace(req.Provider); p != "" {
		parsed, err := domain.ParseProvider(p)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		provider = parsed
	}

	task, err := s.analyses.StartAnalysis(r.Context(), analysis.StartRequest{
		UserID:   userIDFromRequest(r),
		PaperID:  paperID,
		Provider: provider,
		Model:    strings.TrimSpace(req.Model),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startAnalysisResponse{
		TaskID:         task.ID.String(),
		Status:         string(task.Status),
		PollIntervalMs: s.pollInterval.Milliseconds(),
	})
}

// getAnalysis handles GET /analyses/{taskID}.
func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadOwnTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domainTaskToResponse(task))
}

// listAnalyses handles GET /analyses.
func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := defaultTaskListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTaskListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxTaskListLimit))
			return
		}
		limit = parsed
	}

	tasks, err := s.analyses.ListTasks(r.Context(), userIDFromRequest(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listTasksResponse{Tasks: make([]taskResponse, len(tasks))}
	for i, t := range tasks {
		resp.Tasks[i] = domainTaskToResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadOwnTask fetches the task named in the path. Tasks of other users are
// reported as not found.
func (s *Server) loadOwnTask(w http.ResponseWriter, r *http.Request) (*domain.AnalysisTask, bool) {
	taskID, ok := parseUUID(w, chi.URLParam(r, "taskID"), "task_id")
	if !ok {
		return nil, false
	}

	task, err := s.analyses.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if task.UserID != userIDFromRequest(r) {
		writeDomainError(w, domain.NewNotFoundError(domain.EntityAnalysisTask, taskID.String()))
		return nil, false
	}
	return task, true
}

// decodeBody reads a size-limited JSON body into v and validates it.
// It writes a 400 response and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// writeValidationError reports the first failed validator rule.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		writeError(w, http.StatusBadRequest, field+" is required")
	case "min", "gte":
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "max", "lte":
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	default:
		writeError(w, http.StatusBadRequest, field+" is invalid")
	}
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Unrecognized errors never leak their details.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, strings.ReplaceAll(nf.Entity, "_", " ")+" not found")
		} else {
			writeError(w, http.StatusNotFound, "resource not found")
		}
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		var up *domain.UnsupportedProviderError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.As(err, &up):
			writeError(w, http.StatusBadRequest, up.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrPreconditionFailed):
		var nk *domain.NoAPIKeyConfiguredError
		if errors.As(err, &nk) {
			writeError(w, http.StatusPreconditionFailed, "no API key configured, add one in settings")
		} else {
			writeError(w, http.StatusPreconditionFailed, "precondition failed")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "task is already finished")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	case errors.Is(err, domain.ErrExternalAPI):
		writeError(w, http.StatusBadGateway, "upstream API error")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrDecryption):
		writeError(w, http.StatusInternalServerError, "stored API key could not be decrypted")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parseID parses a positive int64 path parameter, writing a 400 error response if invalid.
func parseID(w http.ResponseWriter, s, fieldName string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", fieldName))
		return 0, false
	}
	return id, true
}

// parseDate accepts YYYY-MM-DD or RFC3339. An empty string yields nil.
// A bare end date covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
