package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-analysis-service/internal/credentials"
	"github.com/helixir/paper-analysis-service/internal/domain"
)

// addAPIKeyRequest is the JSON body of POST /api-keys.
type addAPIKeyRequest struct {
	Provider  string `json:"provider" validate:"required"`
	APIKey    string `json:"api_key" validate:"required"`
	ModelName string `json:"model_name,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// updateAPIKeyRequest is the JSON body of PATCH /api-keys/{keyID}.
type updateAPIKeyRequest struct {
	APIKey    *string `json:"api_key,omitempty"`
	ModelName *string `json:"model_name,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

// listAPIKeys handles GET /api-keys.
func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.credentials.List(r.Context(), userIDFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": keys})
}

// addAPIKey handles POST /api-keys.
func (s *Server) addAPIKey(w http.ResponseWriter, r *http.Request) {
	var req addAPIKeyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	view, err := s.credentials.Add(r.Context(), userIDFromRequest(r), credentials.AddInput{
		Provider:  req.Provider,
		APIKey:    req.APIKey,
		ModelName: req.ModelName,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// updateAPIKey handles PATCH /api-keys/{keyID}.
func (s *Server) updateAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID, ok := parseID(w, chi.URLParam(r, "keyID"), "key_id")
	if !ok {
		return
	}

	var req updateAPIKeyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	view, err := s.credentials.Update(r.Context(), userIDFromRequest(r), keyID, credentials.UpdateInput{
		APIKey:    req.APIKey,
		ModelName: req.ModelName,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// deleteAPIKey handles DELETE /api-keys/{keyID}.
func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID, ok := parseID(w, chi.URLParam(r, "keyID"), "key_id")
	if !ok {
		return
	}

	if err := s.credentials.Delete(r.Context(), userIDFromRequest(r), keyID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getDefaultAPIKey handles GET /api-keys/default?provider=.
// The response carries the decrypted key.
func (s *Server) getDefaultAPIKey(w http.ResponseWriter, r *http.Request) {
	var provider domain.Provider
	if raw := r.URL.Query().Get("provider"); raw != "" {
		parsed, err := domain.ParseProvider(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		provider = parsed
	}

	key, err := s.credentials.GetDefault(r.Context(), userIDFromRequest(r), provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, key)
}

// validateAPIKey handles POST /api-keys/{keyID}/validate.
func (s *Server) validateAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID, ok := parseID(w, chi.URLParam(r, "keyID"), "key_id")
	if !ok {
		return
	}

	valid, err := s.credentials.Validate(r.Context(), userIDFromRequest(r), keyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateKeyResponse{Valid: valid})
}
