package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// Compile-time interface verification.
var (
	_ PaperRepository      = (*MemoryPaperRepository)(nil)
	_ CredentialRepository = (*MemoryCredentialRepository)(nil)
	_ TaskRepository       = (*MemoryTaskRepository)(nil)
	_ ReportRepository     = (*MemoryReportRepository)(nil)
)

// Values are copied on the way in and out so callers never share memory
// with the store.

func clonePaper(p *domain.Paper) *domain.Paper {
	c := *p
	c.Authors = append([]string(nil), p.Authors...)
	c.Keywords = append([]string(nil), p.Keywords...)
	return &c
}

func cloneCredential(c *domain.Credential) *domain.Credential {
	out := *c
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		out.LastUsedAt = &t
	}
	return &out
}

func cloneTask(t *domain.AnalysisTask) *domain.AnalysisTask {
	out := *t
	if t.TokensUsed != nil {
		v := *t.TokensUsed
		out.TokensUsed = &v
	}
	if t.CostEstimate != nil {
		v := *t.CostEstimate
		out.CostEstimate = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

func cloneReport(r *domain.AnalysisReport) *domain.AnalysisReport {
	out := *r
	return &out
}

// MemoryPaperRepository is an in-memory PaperRepository.
type MemoryPaperRepository struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*domain.Paper
	byExternal map[string]int64
}

// NewMemoryPaperRepository creates an empty in-memory paper repository.
func NewMemoryPaperRepository() *MemoryPaperRepository {
	return &MemoryPaperRepository{
		byID:       make(map[int64]*domain.Paper),
		byExternal: make(map[string]int64),
	}
}

func (r *MemoryPaperRepository) insertLocked(paper *domain.Paper, now time.Time) {
	r.nextID++
	paper.ID = r.nextID
	paper.CreatedAt = now
	paper.UpdatedAt = now
	r.byID[paper.ID] = clonePaper(paper)
	r.byExternal[paper.ExternalID] = paper.ID
}

// Create implements PaperRepository.
func (r *MemoryPaperRepository) Create(_ context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if err := validatePaper(paper); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byExternal[paper.ExternalID]; exists {
		return nil, domain.NewAlreadyExistsError(domain.EntityPaper, paper.ExternalID)
	}
	r.insertLocked(paper, time.Now().UTC())
	return paper, nil
}

// GetByID implements PaperRepository.
func (r *MemoryPaperRepository) GetByID(_ context.Context, id int64) (*domain.Paper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityPaper, strconv.FormatInt(id, 10))
	}
	return clonePaper(p), nil
}

// GetByExternalID implements PaperRepository.
func (r *MemoryPaperRepository) GetByExternalID(_ context.Context, externalID string) (*domain.Paper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityPaper, externalID)
	}
	return clonePaper(r.byID[id]), nil
}

// InsertNew implements PaperRepository.
func (r *MemoryPaperRepository) InsertNew(_ context.Context, papers []*domain.Paper) ([]*domain.Paper, error) {
	for _, paper := range papers {
		if err := validatePaper(paper); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	inserted := make([]*domain.Paper, 0, len(papers))
	for _, paper := range papers {
		if _, exists := r.byExternal[paper.ExternalID]; exists {
			continue
		}
		r.insertLocked(paper, now)
		inserted = append(inserted, paper)
	}
	return inserted, nil
}

// List implements PaperRepository.
func (r *MemoryPaperRepository) List(_ context.Context, filter domain.PaperFilter) ([]*domain.Paper, int64, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)
	search := strings.ToLower(filter.Search)

	r.mu.RLock()
	matched := make([]*domain.Paper, 0, len(r.byID))
	for _, p := range r.byID {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Abstract), search) {
			continue
		}
		if filter.From != nil && p.PublicationDate.Before(*filter.From) {
			continue
		}
		if filter.Until != nil && p.PublicationDate.After(*filter.Until) {
			continue
		}
		matched = append(matched, clonePaper(p))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.PublicationDate.Equal(b.PublicationDate) {
			if filter.Oldest {
				return a.PublicationDate.Before(b.PublicationDate)
			}
			return a.PublicationDate.After(b.PublicationDate)
		}
		if filter.Oldest {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*domain.Paper{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

// MemoryCredentialRepository is an in-memory CredentialRepository.
// The mutex makes default switching atomic.
type MemoryCredentialRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Credential
}

// NewMemoryCredentialRepository creates an empty in-memory credential repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{byID: make(map[int64]*domain.Credential)}
}

func (r *MemoryCredentialRepository) clearDefaultsLocked(userID int64, provider domain.Provider, except int64, now time.Time) {
	for _, c := range r.byID {
		if c.UserID == userID && c.Provider == provider && c.ID != except && c.IsDefault {
			c.IsDefault = false
			c.UpdatedAt = now
		}
	}
}

func (r *MemoryCredentialRepository) getLocked(userID, id int64) (*domain.Credential, error) {
	c, ok := r.byID[id]
	if !ok || c.UserID != userID || !c.IsActive {
		return nil, domain.NewNotFoundError(domain.EntityAPIKey, strconv.FormatInt(id, 10))
	}
	return c, nil
}

// Create implements CredentialRepository.
func (r *MemoryCredentialRepository) Create(_ context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if cred == nil {
		return nil, domain.NewValidationError("credential", "credential cannot be nil")
	}
	if !cred.Provider.IsValid() {
		return nil, &domain.UnsupportedProviderError{Provider: string(cred.Provider)}
	}
	if cred.EncryptedSecret == "" {
		return nil, domain.NewValidationError("api_key", "encrypted secret is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.nextID++
	cred.ID = r.nextID
	cred.IsActive = true
	cred.CreatedAt = now
	cred.UpdatedAt = now
	if cred.IsDefault {
		r.clearDefaultsLocked(cred.UserID, cred.Provider, cred.ID, now)
	}
	r.byID[cred.ID] = cloneCredential(cred)
	return cred, nil
}

// GetByID implements CredentialRepository.
func (r *MemoryCredentialRepository) GetByID(_ context.Context, userID, id int64) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.getLocked(userID, id)
	if err != nil {
		return nil, err
	}
	return cloneCredential(c), nil
}

// ListByUser implements CredentialRepository.
func (r *MemoryCredentialRepository) ListByUser(_ context.Context, userID int64) ([]*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	creds := make([]*domain.Credential, 0)
	for _, c := range r.byID {
		if c.UserID == userID && c.IsActive {
			creds = append(creds, cloneCredential(c))
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].ID < creds[j].ID })
	return creds, nil
}

// Update implements CredentialRepository.
func (r *MemoryCredentialRepository) Update(_ context.Context, userID, id int64, upd domain.CredentialUpdate) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.getLocked(userID, id)
	if err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return cloneCredential(c), nil
	}

	now := time.Now().UTC()
	if upd.EncryptedSecret != nil {
		c.EncryptedSecret = *upd.EncryptedSecret
	}
	if upd.ModelName != nil {
		c.ModelName = *upd.ModelName
	}
	if upd.IsActive != nil {
		c.IsActive = *upd.IsActive
	}
	if upd.IsDefault != nil {
		c.IsDefault = *upd.IsDefault
		if c.IsDefault {
			r.clearDefaultsLocked(c.UserID, c.Provider, c.ID, now)
		}
	}
	c.UpdatedAt = now
	return cloneCredential(c), nil
}

// SoftDelete implements CredentialRepository.
func (r *MemoryCredentialRepository) SoftDelete(_ context.Context, userID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.getLocked(userID, id)
	if err != nil {
		return err
	}
	c.IsActive = false
	c.IsDefault = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchLastUsed implements CredentialRepository.
func (r *MemoryCredentialRepository) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return domain.NewNotFoundError(domain.EntityAPIKey, strconv.FormatInt(id, 10))
	}
	at = at.UTC()
	c.LastUsedAt = &at
	return nil
}

// MemoryTaskRepository is an in-memory TaskRepository.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.AnalysisTask
}

// NewMemoryTaskRepository creates an empty in-memory task repository.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[uuid.UUID]*domain.AnalysisTask)}
}

// Create implements TaskRepository.
func (r *MemoryTaskRepository) Create(_ context.Context, task *domain.AnalysisTask) error {
	if task == nil {
		return domain.NewValidationError("task", "task cannot be nil")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return domain.NewAlreadyExistsError(domain.EntityAnalysisTask, task.ID.String())
	}
	now := time.Now().UTC()
	if task.StartedAt.IsZero() {
		task.StartedAt = now
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	r.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetByID implements TaskRepository.
func (r *MemoryTaskRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.AnalysisTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityAnalysisTask, id.String())
	}
	return cloneTask(t), nil
}

// Update implements TaskRepository.
func (r *MemoryTaskRepository) Update(_ context.Context, id uuid.UUID, upd domain.TaskUpdate) (*domain.AnalysisTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tasks[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityAnalysisTask, id.String())
	}

	next := cloneTask(stored)
	if err := upd.Apply(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	r.tasks[id] = next
	return cloneTask(next), nil
}

// ListByUser implements TaskRepository.
func (r *MemoryTaskRepository) ListByUser(_ context.Context, userID int64, limit int) ([]*domain.AnalysisTask, error) {
	offset := 0
	applyPaginationDefaults(&limit, &offset)

	r.mu.RLock()
	tasks := make([]*domain.AnalysisTask, 0)
	for _, t := range r.tasks {
		if t.UserID == userID {
			tasks = append(tasks, cloneTask(t))
		}
	}
	r.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// MemoryReportRepository is an in-memory ReportRepository.
type MemoryReportRepository struct {
	mu      sync.RWMutex
	nextID  int64
	byPaper map[int64]*domain.AnalysisReport
}

// NewMemoryReportRepository creates an empty in-memory report repository.
func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{byPaper: make(map[int64]*domain.AnalysisReport)}
}

// GetByPaperID implements ReportRepository.
func (r *MemoryReportRepository) GetByPaperID(_ context.Context, paperID int64) (*domain.AnalysisReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.byPaper[paperID]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityReport, strconv.FormatInt(paperID, 10))
	}
	return cloneReport(rep), nil
}

// Create implements ReportRepository.
func (r *MemoryReportRepository) Create(_ context.Context, report *domain.AnalysisReport) (*domain.AnalysisReport, error) {
	if report == nil {
		return nil, domain.NewValidationError("report", "report cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPaper[report.PaperID]; exists {
		return nil, domain.NewAlreadyExistsError(domain.EntityReport, strconv.FormatInt(report.PaperID, 10))
	}
	now := time.Now().UTC()
	r.nextID++
	report.ID = r.nextID
	report.CreatedAt = now
	report.UpdatedAt = now
	r.byPaper[report.PaperID] = cloneReport(report)
	return report, nil
}

// Update implements ReportRepository.
func (r *MemoryReportRepository) Update(_ context.Context, id int64, upd domain.ReportUpdate) (*domain.AnalysisReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rep := range r.byPaper {
		if rep.ID != id {
			continue
		}
		if upd.Sections != nil {
			rep.ReportSections = *upd.Sections
		}
		if upd.Status != nil {
			rep.Status = *upd.Status
		}
		if upd.GeneratedAt != nil {
			rep.GeneratedAt = *upd.GeneratedAt
		}
		rep.UpdatedAt = time.Now().UTC()
		return cloneReport(rep), nil
	}
	return nil, domain.NewNotFoundError(domain.EntityReport, strconv.FormatInt(id, 10))
}

// Upsert implements ReportRepository.
func (r *MemoryReportRepository) Upsert(_ context.Context, report *domain.AnalysisReport) (*domain.AnalysisReport, error) {
	if report == nil {
		return nil, domain.NewValidationError("report", "report cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.byPaper[report.PaperID]; ok {
		report.ID = existing.ID
		report.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		report.ID = r.nextID
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	r.byPaper[report.PaperID] = cloneReport(report)
	return report, nil
}
