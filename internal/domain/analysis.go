package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisTask tracks one asynchronous analysis attempt against one paper.
type AnalysisTask struct {
	ID           uuid.UUID
	UserID       int64
	PaperID      int64
	Provider     Provider
	ModelName    string
	Status       TaskStatus
	Progress     int
	TokensUsed   *int
	CostEstimate *float64
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskUpdate carries the optional fields of an analysis task update.
// Nil fields are left unchanged.
type TaskUpdate struct {
	Status       *TaskStatus
	Progress     *int
	TokensUsed   *int
	CostEstimate *float64
	ErrorMessage *string
	CompletedAt  *time.Time
}

// Apply validates u against the current state of t and applies it in place.
func (u TaskUpdate) Apply(t *AnalysisTask) error {
	if u.Status != nil {
		if !t.Status.CanTransitionTo(*u.Status) {
			return ErrInvalidTransition
		}
		t.Status = *u.Status
	} else if t.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	if u.Progress != nil {
		if *u.Progress < t.Progress || *u.Progress > 100 {
			return NewValidationError("progress", "must be non-decreasing and at most 100")
		}
		t.Progress = *u.Progress
	}
	if u.TokensUsed != nil {
		t.TokensUsed = u.TokensUsed
	}
	if u.CostEstimate != nil {
		t.CostEstimate = u.CostEstimate
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		t.CompletedAt = u.CompletedAt
	}
	return nil
}

// ReportSections holds the five analysis dimensions plus the summary.
type ReportSections struct {
	Background string `json:"background"`
	What       string `json:"what"`
	Why        string `json:"why"`
	How        string `json:"how"`
	HowWhy     string `json:"how_why"`
	Summary    string `json:"summary"`
}

// AnalysisReport is the persisted five-dimension report for a paper.
// There is at most one per paper; the last completed task wins.
type AnalysisReport struct {
	ID      int64
	PaperID int64
	ReportSections
	Status      TaskStatus
	GeneratedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReportUpdate carries the optional fields of a report update.
type ReportUpdate struct {
	Sections    *ReportSections
	Status      *TaskStatus
	GeneratedAt *time.Time
}
