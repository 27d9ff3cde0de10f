package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
)

// mockGenerationService is a mock implementation of driving.GenerationService.
type mockGenerationService struct {
	result   *domain.RunResult
	err      error
	requests []domain.ScenarioRequest
}

func (m *mockGenerationService) Generate(
	_ context.Context,
	req domain.ScenarioRequest,
	_ domain.ProgressFunc,
) (*domain.RunResult, error) {
	m.requests = append(m.requests, req)
	return m.result, m.err
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	results []domain.ScoredPassage
	err     error
	k       int
}

func (m *mockIndexService) Ensure(context.Context) (domain.IndexAction, error) {
	return domain.IndexLoaded, m.err
}

func (m *mockIndexService) Build(context.Context) (*domain.IndexInfo, error) {
	return &domain.IndexInfo{}, m.err
}

func (m *mockIndexService) Info(context.Context) (*domain.IndexInfo, error) {
	return &domain.IndexInfo{}, m.err
}

func (m *mockIndexService) Query(_ context.Context, _ string, k int) ([]domain.ScoredPassage, error) {
	m.k = k
	return m.results, m.err
}

// mockRunService is a mock implementation of driving.RunService.
type mockRunService struct {
	records   []domain.RunRecord
	artifacts map[string]map[string][]byte
	err       error
}

func (m *mockRunService) List(_ context.Context, _ int) ([]domain.RunRecord, error) {
	return m.records, m.err
}

func (m *mockRunService) Get(_ context.Context, requestID string) (*domain.RunRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.records {
		if m.records[i].RequestID == requestID {
			return &m.records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
}

func (m *mockRunService) Artifacts(_ context.Context, requestID string) ([]domain.ArtifactInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	files, ok := m.artifacts[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
	}
	infos := make([]domain.ArtifactInfo, 0, len(files))
	for name, data := range files {
		infos = append(infos, domain.ArtifactInfo{Name: name, Kind: domain.KindOf(name), Size: int64(len(data))})
	}
	return infos, nil
}

func (m *mockRunService) Artifact(_ context.Context, requestID, name string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.artifacts[requestID][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, requestID, name)
	}
	return data, nil
}

func (m *mockRunService) Record(context.Context, domain.ScenarioRequest, *domain.RunResult, time.Time) error {
	return m.err
}

// Verify mocks implement interfaces.
var (
	_ driving.GenerationService = (*mockGenerationService)(nil)
	_ driving.IndexService      = (*mockIndexService)(nil)
	_ driving.RunService        = (*mockRunService)(nil)
)
