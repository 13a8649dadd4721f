package applications

import (
	"context"

	"resume-pipeline/internal/llm"
)

// Repo persists applications, their artifacts and the generation audit trail.
type Repo interface {
	Create(ctx context.Context, app Application) error
	Get(ctx context.Context, id string) (Application, error)
	Update(ctx context.Context, app Application) error
	// SaveArtifact stores the artifact unless one already exists for (application, type, language).
	// It returns the stored artifact and whether it was newly created.
	SaveArtifact(ctx context.Context, a Artifact) (Artifact, bool, error)
	ListArtifacts(ctx context.Context, applicationID string) ([]Artifact, error)
	SaveGeneration(ctx context.Context, gen llm.GenerationRequest) error
	ListGenerations(ctx context.Context, applicationID string) ([]llm.GenerationRequest, error)
}

var _ llm.GenerationRecorder = (Repo)(nil)

// Locker serializes work on one application across processes.
// The returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, applicationID string) (release func(), err error)
}
