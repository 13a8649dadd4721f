package applications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"resume-pipeline/internal/llm"
)

// MemoryRepo stores applications in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu          sync.RWMutex
	byID        map[string]Application
	artifacts   map[string][]Artifact
	generations map[string][]llm.GenerationRequest
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:        make(map[string]Application),
		artifacts:   make(map[string][]Artifact),
		generations: make(map[string][]llm.GenerationRequest),
	}
}

// Create stores a new application.
func (r *MemoryRepo) Create(ctx context.Context, app Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if app.ID == "" {
		return errors.New("application id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[app.ID]; ok {
		return errors.New("application already exists")
	}
	r.byID[app.ID] = app.clone()
	return nil
}

// Get returns an application by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.byID[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return app.clone(), nil
}

// Update replaces a stored application.
func (r *MemoryRepo) Update(ctx context.Context, app Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[app.ID]; !ok {
		return ErrNotFound
	}
	app.UpdatedAt = time.Now().UTC()
	r.byID[app.ID] = app.clone()
	return nil
}

// SaveArtifact stores the artifact unless (application, type, language) already exists.
func (r *MemoryRepo) SaveArtifact(ctx context.Context, a Artifact) (Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.artifacts[a.ApplicationID] {
		if existing.Type == a.Type && existing.Language == a.Language {
			return existing, false, nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Reasons = append([]string(nil), a.Reasons...)
	r.artifacts[a.ApplicationID] = append(r.artifacts[a.ApplicationID], a)
	return a, true, nil
}

// ListArtifacts returns artifacts in creation order.
func (r *MemoryRepo) ListArtifacts(ctx context.Context, applicationID string) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Artifact(nil), r.artifacts[applicationID]...), nil
}

// SaveGeneration appends a generation request to the audit trail.
func (r *MemoryRepo) SaveGeneration(ctx context.Context, gen llm.GenerationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	gen.EvidenceIDs = append([]string(nil), gen.EvidenceIDs...)
	r.generations[gen.ApplicationID] = append(r.generations[gen.ApplicationID], gen)
	return nil
}

// ListGenerations returns generation requests in the order they were saved.
func (r *MemoryRepo) ListGenerations(ctx context.Context, applicationID string) ([]llm.GenerationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]llm.GenerationRequest(nil), r.generations[applicationID]...), nil
}

var _ Repo = (*MemoryRepo)(nil)
