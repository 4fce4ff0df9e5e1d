package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates that the request lacks a caller identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPreconditionFailed indicates a user-fixable precondition is not met,
	// such as a missing API key.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrExternalAPI indicates that an upstream vendor returned an unsuccessful response.
	ErrExternalAPI = errors.New("external API error")

	// ErrDecryption indicates that a stored secret could not be decrypted.
	ErrDecryption = errors.New("decryption failed")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternalError indicates an internal server error.
	ErrInternalError = errors.New("internal error")

	// ErrInvalidTransition indicates an analysis task status change that would
	// leave a terminal state or move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Entity names used in NotFoundError.
const (
	EntityPaper        = "paper"
	EntityAnalysisTask = "analysis_task"
	EntityReport       = "analysis_report"
	EntityAPIKey       = "api_key"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsPaperNotFound reports whether err is a NotFoundError for a paper.
func IsPaperNotFound(err error) bool {
	return isNotFoundEntity(err, EntityPaper)
}

// IsTaskNotFound reports whether err is a NotFoundError for an analysis task.
func IsTaskNotFound(err error) bool {
	return isNotFoundEntity(err, EntityAnalysisTask)
}

func isNotFoundEntity(err error, entity string) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Entity == entity
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// NoAPIKeyConfiguredError is returned when a user has no active credential
// usable for an analysis request.
type NoAPIKeyConfiguredError struct {
	UserID   int64
	Provider Provider
}

// Error implements the error interface.
func (e *NoAPIKeyConfiguredError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("no default API key configured for user %d", e.UserID)
	}
	return fmt.Sprintf("no active %s API key configured for user %d", e.Provider, e.UserID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NoAPIKeyConfiguredError) Unwrap() error {
	return ErrPreconditionFailed
}

// UnsupportedProviderError is returned for a provider name outside the fixed set.
type UnsupportedProviderError struct {
	Provider string
}

// Error implements the error interface.
func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %q", e.Provider)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *UnsupportedProviderError) Unwrap() error {
	return ErrInvalidInput
}

// RateLimitError is returned when a paper source keeps answering 429 after all attempts.
type RateLimitError struct {
	Source   string
	Attempts int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded after %d attempts, try again later", e.Source, e.Attempts)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// DecryptionError is returned for corrupt or foreign ciphertext.
type DecryptionError struct {
	Reason string
}

// Error implements the error interface.
func (e *DecryptionError) Error() string {
	return "failed to decrypt data: " + e.Reason
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *DecryptionError) Unwrap() error {
	return ErrDecryption
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, attempts int) *RateLimitError {
	return &RateLimitError{
		Source:   source,
		Attempts: attempts,
	}
}

// NewDecryptionError creates a new DecryptionError.
func NewDecryptionError(reason string) *DecryptionError {
	return &DecryptionError{Reason: reason}
}
