package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/library"
	"github.com/helixir/paper-analysis-service/internal/papersources"
)

const defaultFetchMaxResults = 10

// fetchPapersRequest is the JSON body of POST /papers/fetch.
type fetchPapersRequest struct {
	Query      string `json:"query" validate:"required,max=500"`
	MaxResults int    `json:"max_results" validate:"omitempty,min=1,max=50"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

// listPapers handles GET /papers.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := library.ListQuery{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Sort:     q.Get("sort"),
	}

	var err error
	if query.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if query.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	dateRange, ok := parseDateRange(w, q.Get("start_date"), q.Get("end_date"))
	if !ok {
		return
	}
	query.Range = dateRange

	papers, total, err := s.papers.List(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	limit := query.Limit
	if limit == 0 {
		limit = len(papers)
	}
	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:     domainPapersToResponse(papers),
		TotalCount: total,
		Limit:      limit,
		Offset:     query.Offset,
	})
}

// getPaper handles GET /papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	detail, err := s.papers.Detail(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, paperDetailResponse{
		Paper:  domainPaperToResponse(detail.Paper),
		Report: domainReportToResponse(detail.Report),
	})
}

// fetchPapers handles POST /papers/fetch.
func (s *Server) fetchPapers(w http.ResponseWriter, r *http.Request) {
	var req fetchPapersRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultFetchMaxResults
	}

	dateRange, ok := parseDateRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	result, err := s.papers.FetchAndStore(r.Context(), papersources.FetchParams{
		Query:      req.Query,
		MaxResults: req.MaxResults,
		DateRange:  dateRange,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	storedIDs := result.StoredIDs
	if storedIDs == nil {
		storedIDs = []int64{}
	}
	writeJSON(w, http.StatusOK, fetchPapersResponse{
		Papers:    domainPapersToResponse(result.Papers),
		StoredIDs: storedIDs,
		Message:   fmt.Sprintf("fetched %d papers, stored %d new", len(result.Papers), len(storedIDs)),
	})
}

// uploadPaper handles POST /papers/upload.
func (s *Server) uploadPaper(w http.ResponseWriter, r *http.Request) {
	var req library.UploadInput
	if !s.decodeBody(w, r, &req) {
		return
	}

	paper, err := s.papers.UploadLocal(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadPaperResponse{
		PaperID: paper.ID,
		Message: "paper uploaded",
	})
}

// parseDateRange parses optional start and end dates, writing a 400 response on failure.
func parseDateRange(w http.ResponseWriter, start, end string) (*domain.DateRange, bool) {
	from, err := parseDate(start, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date format: expected YYYY-MM-DD or RFC3339")
		return nil, false
	}
	until, err := parseDate(end, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date format: expected YYYY-MM-DD or RFC3339")
		return nil, false
	}
	if from == nil && until == nil {
		return nil, true
	}
	if from != nil && until != nil && until.Before(*from) {
		writeError(w, http.StatusBadRequest, "end_date must not be before start_date")
		return nil, false
	}
	return &domain.DateRange{Start: from, End: until}, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
