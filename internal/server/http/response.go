package httpserver

import (
	"time"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// Paper response types for JSON serialization.

type paperResponse struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors"`
	Abstract    string    `json:"abstract"`
	HasFullText bool      `json:"has_full_text"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"source_url"`
	Category    string    `json:"category,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type listPapersResponse struct {
	Papers     []paperResponse `json:"papers"`
	TotalCount int64           `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

type reportResponse struct {
	ID int64 `json:"id"`
	domain.ReportSections
	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
}

type paperDetailResponse struct {
	Paper  paperResponse   `json:"paper"`
	Report *reportResponse `json:"report"`
}

type fetchPapersResponse struct {
	Papers    []paperResponse `json:"papers"`
	StoredIDs []int64         `json:"stored_ids"`
	Message   string          `json:"message"`
}

type uploadPaperResponse struct {
	PaperID int64  `json:"paper_id"`
	Message string `json:"message"`
}

// Analysis response types.

type startAnalysisResponse struct {
	TaskID         string `json:"task_id"`
	Status         string `json:"status"`
	PollIntervalMs int64  `json:"poll_interval_ms"`
}

type taskResponse struct {
	TaskID       string     `json:"task_id"`
	PaperID      int64      `json:"paper_id"`
	Provider     string     `json:"provider"`
	ModelName    string     `json:"model_name"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	TokensUsed   *int       `json:"tokens_used,omitempty"`
	CostEstimate *float64   `json:"cost_estimate,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
}

type listTasksResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

// API key response types.

type validateKeyResponse struct {
	Valid bool `json:"valid"`
}

// Converter functions

func domainPaperToResponse(p *domain.Paper) paperResponse {
	return paperResponse{
		ID:          p.ID,
		ExternalID:  p.ExternalID,
		Title:       p.Title,
		Authors:     nonNil(p.Authors),
		Abstract:    p.Abstract,
		HasFullText: p.HasFullText(),
		PublishedAt: p.PublicationDate,
		Source:      string(p.Source),
		SourceURL:   p.SourceURL,
		Category:    p.Category,
		Keywords:    p.Keywords,
		CreatedAt:   p.CreatedAt,
	}
}

func domainPapersToResponse(papers []*domain.Paper) []paperResponse {
	out := make([]paperResponse, len(papers))
	for i, p := range papers {
		out[i] = domainPaperToResponse(p)
	}
	return out
}

func domainReportToResponse(r *domain.AnalysisReport) *reportResponse {
	if r == nil {
		return nil
	}
	return &reportResponse{
		ID:             r.ID,
		ReportSections: r.ReportSections,
		Status:         string(r.Status),
		GeneratedAt:    r.GeneratedAt,
	}
}

func domainTaskToResponse(t *domain.AnalysisTask) taskResponse {
	resp := taskResponse{
		TaskID:       t.ID.String(),
		PaperID:      t.PaperID,
		Provider:     string(t.Provider),
		ModelName:    t.ModelName,
		Status:       string(t.Status),
		Progress:     t.Progress,
		TokensUsed:   t.TokensUsed,
		CostEstimate: t.CostEstimate,
		ErrorMessage: t.ErrorMessage,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
	}
	if t.CompletedAt != nil {
		resp.Duration = t.CompletedAt.Sub(t.StartedAt).String()
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
