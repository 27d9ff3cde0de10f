package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
)

// Ensure RunService implements the interface.
var _ driving.RunService = (*RunService)(nil)

// DefaultRunListLimit bounds run listings when no limit is given.
const DefaultRunListLimit = 20

// RunService exposes the history and artifacts of past runs.
type RunService struct {
	runs      driven.RunStore
	artifacts driven.ArtifactStore
}

// NewRunService creates a run service.
func NewRunService(runs driven.RunStore, artifacts driven.ArtifactStore) *RunService {
	return &RunService{runs: runs, artifacts: artifacts}
}

// List returns recent runs, newest first.
func (s *RunService) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	return s.runs.ListRuns(ctx, limit)
}

// Get returns one run.
func (s *RunService) Get(ctx context.Context, requestID string) (*domain.RunRecord, error) {
	return s.runs.GetRun(ctx, requestID)
}

// Artifacts lists the persisted artifacts of a run.
func (s *RunService) Artifacts(ctx context.Context, requestID string) ([]domain.ArtifactInfo, error) {
	return s.artifacts.List(ctx, requestID)
}

// Artifact reads one artifact of a run.
func (s *RunService) Artifact(ctx context.Context, requestID, name string) ([]byte, error) {
	return s.artifacts.Get(ctx, requestID, name)
}

// Record stores the summary of a finished run. A nil result is ignored
// because no request ID was allocated.
func (s *RunService) Record(
	ctx context.Context,
	req domain.ScenarioRequest,
	result *domain.RunResult,
	createdAt time.Time,
) error {
	if result == nil {
		return nil
	}
	record := domain.RunRecord{
		RequestID:  result.RequestID,
		Mode:       result.Mode,
		Status:     result.Status,
		Scenario:   req.Normalised().Scenario,
		Result:     result,
		CreatedAt:  createdAt.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := s.runs.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("record run %s: %w", result.RequestID, err)
	}
	return nil
}
