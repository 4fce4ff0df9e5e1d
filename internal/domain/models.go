// Package domain provides domain models and business rules for the Paper Analysis Service.
package domain

import "strings"

// Provider identifies an external LLM vendor.
// These values must match the api_keys.provider and analysis_tasks.provider columns.
type Provider string

const (
	ProviderDeepSeek Provider = "deepseek"
	ProviderOpenAI   Provider = "openai"
	ProviderClaude   Provider = "claude"
	ProviderGemini   Provider = "gemini"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderDeepSeek, ProviderOpenAI, ProviderClaude, ProviderGemini}

// ParseProvider normalizes name and checks it against the supported set.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if !p.IsValid() {
		return "", &UnsupportedProviderError{Provider: name}
	}
	return p, nil
}

// IsValid reports whether p is one of the supported providers.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderDeepSeek, ProviderOpenAI, ProviderClaude, ProviderGemini:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return string(p)
}

// TaskStatus represents the lifecycle states of an analysis task.
// These values must match the database enum analysis_status.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a task in status s may move to next.
// Transitions are monotonic: pending -> processing -> completed|failed.
// A pending task may fail directly, and re-asserting a non-terminal status is allowed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case TaskStatusPending:
		return next == TaskStatusPending || next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusProcessing || next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// SourceType represents where a paper record came from.
type SourceType string

const (
	SourceTypeArXiv SourceType = "arxiv"
	SourceTypeLocal SourceType = "local"
)
