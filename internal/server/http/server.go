// Package httpserver provides the HTTP REST API of the paper analysis service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/analysis"
	"github.com/helixir/paper-analysis-service/internal/credentials"
	"github.com/helixir/paper-analysis-service/internal/database"
	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/library"
	"github.com/helixir/paper-analysis-service/internal/papersources"
)

// PaperService is the paper library used by the paper endpoints.
type PaperService interface {
	FetchAndStore(ctx context.Context, params papersources.FetchParams) (*library.FetchResult, error)
	UploadLocal(ctx context.Context, in library.UploadInput) (*domain.Paper, error)
	List(ctx context.Context, q library.ListQuery) ([]*domain.Paper, int64, error)
	Detail(ctx context.Context, paperID int64) (*library.Detail, error)
}

// AnalysisService starts and reports analysis jobs.
type AnalysisService interface {
	StartAnalysis(ctx context.Context, req analysis.StartRequest) (*domain.AnalysisTask, error)
	GetTaskStatus(ctx context.Context, taskID uuid.UUID) (*domain.AnalysisTask, error)
	ListTasks(ctx context.Context, userID int64, limit int) ([]*domain.AnalysisTask, error)
}

// CredentialService manages the caller's API keys.
type CredentialService interface {
	Add(ctx context.Context, userID int64, in credentials.AddInput) (*credentials.View, error)
	List(ctx context.Context, userID int64) ([]*credentials.View, error)
	Update(ctx context.Context, userID, id int64, in credentials.UpdateInput) (*credentials.View, error)
	Delete(ctx context.Context, userID, id int64) error
	GetDefault(ctx context.Context, userID int64, provider domain.Provider) (*credentials.DefaultKey, error)
	Validate(ctx context.Context, userID, id int64) (bool, error)
}

// HealthChecker reports database health. It is nil for the in-memory store.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// RequestRecorder records per-route request metrics.
type RequestRecorder interface {
	RecordHTTPRequest(method, route, status string, durationSeconds float64)
}

// Services groups the dependencies of the HTTP handlers.
type Services struct {
	Papers      PaperService
	Analyses    AnalysisService
	Credentials CredentialService
	Health      HealthChecker
	Metrics     RequestRecorder
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// PollInterval is the task poll interval advertised to clients.
	PollInterval time.Duration
}

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 2 * time.Second
)

// Server is the HTTP REST API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	papers       PaperService
	analyses     AnalysisService
	credentials  CredentialService
	health       HealthChecker
	metrics      RequestRecorder
	validate     *validator.Validate
	pollInterval time.Duration
	reqTimeout   time.Duration
	logger       zerolog.Logger
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, svc Services, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	s := &Server{
		papers:       svc.Papers,
		analyses:     svc.Analyses,
		credentials:  svc.Credentials,
		health:       svc.Health,
		metrics:      svc.Metrics,
		validate:     newValidator(),
		pollInterval: cfg.PollInterval,
		reqTimeout:   cfg.RequestTimeout,
		logger:       logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestContextMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints (no caller identity)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(userIDMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.reqTimeout))

			r.Get("/papers", s.listPapers)
			r.Post("/papers/fetch", s.fetchPapers)
			r.Post("/papers/upload", s.uploadPaper)
			r.Get("/papers/{paperID}", s.getPaper)
			r.Post("/papers/{paperID}/analyses", s.startAnalysis)

			r.Get("/analyses", s.listAnalyses)
			r.Get("/analyses/{taskID}", s.getAnalysis)

			r.Get("/api-keys", s.listAPIKeys)
			r.Post("/api-keys", s.addAPIKey)
			r.Get("/api-keys/default", s.getDefaultAPIKey)
			r.Patch("/api-keys/{keyID}", s.updateAPIKey)
			r.Delete("/api-keys/{keyID}", s.deleteAPIKey)
			r.Post("/api-keys/{keyID}/validate", s.validateAPIKey)
		})

		// Streams outlive the request timeout.
		r.Get("/analyses/{taskID}/progress", s.streamProgress)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the store can serve requests.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": "memory"})
		return
	}

	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
