package llm

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// maxErrorBodyInMessage caps how much of a vendor body is echoed by Error().
const maxErrorBodyInMessage = 1024

// ProviderError represents a non-2xx response from an LLM vendor.
type ProviderError struct {
	// Provider is the vendor that answered.
	Provider domain.Provider
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Body is the raw response body.
	Body string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyInMessage {
		n := maxErrorBodyInMessage
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n] + "..."
	}
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, body)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ProviderError) Unwrap() error {
	return domain.ErrExternalAPI
}

// IsAuthError returns true if the vendor rejected the credential.
func (e *ProviderError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRateLimited returns true if the vendor throttled the request.
func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
