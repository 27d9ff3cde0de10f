package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// GenerationService turns a scenario into rendered diagrams.
type GenerationService interface {
	// Generate runs the pipeline synchronously and reports progress to fn (which may be nil).
	// The returned result is non-nil whenever a request ID was allocated,
	// even when err is non-nil, so callers can still find persisted artifacts.
	Generate(ctx context.Context, req domain.ScenarioRequest, fn domain.ProgressFunc) (*domain.RunResult, error)
}

// JobService runs generations asynchronously with progress and cancellation.
type JobService interface {
	// Submit validates the request and starts it in the background.
	// Invalid requests are rejected here, before any job exists.
	Submit(ctx context.Context, req domain.ScenarioRequest) (*domain.Job, error)

	// Get returns a snapshot of a job. Returns domain.ErrNotFound if unknown.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// List returns snapshots of all known jobs, newest first.
	List(ctx context.Context) ([]domain.Job, error)

	// Cancel abandons a running job. Cancelling a finished job is a no-op.
	Cancel(ctx context.Context, id string) error

	// Wait blocks until the job reaches a terminal status or ctx is done.
	Wait(ctx context.Context, id string) (*domain.Job, error)

	// Shutdown cancels every running job and waits for them to stop.
	Shutdown(ctx context.Context) error
}

// RunService exposes the history and artifacts of past runs.
type RunService interface {
	// List returns recent runs, newest first.
	List(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// Get returns one run. Returns domain.ErrNotFound if unknown.
	Get(ctx context.Context, requestID string) (*domain.RunRecord, error)

	// Artifacts lists the persisted artifacts of a run.
	Artifacts(ctx context.Context, requestID string) ([]domain.ArtifactInfo, error)

	// Artifact reads one artifact of a run.
	Artifact(ctx context.Context, requestID, name string) ([]byte, error)

	// Record stores the summary of a finished run.
	Record(ctx context.Context, req domain.ScenarioRequest, result *domain.RunResult, createdAt time.Time) error
}
