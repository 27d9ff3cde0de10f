package http

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/services"
)

// mockJobs implements driving.JobService for testing.
type mockJobs struct {
	jobs      map[string]*domain.Job
	submitted []domain.ScenarioRequest
	cancelled []string
}

func newMockJobs() *mockJobs {
	return &mockJobs{jobs: make(map[string]*domain.Job)}
}

func (m *mockJobs) Submit(_ context.Context, req domain.ScenarioRequest) (*domain.Job, error) {
	req, err := services.ValidateRequest(req)
	if err != nil {
		return nil, err
	}
	m.submitted = append(m.submitted, req)
	job := &domain.Job{
		ID:        fmt.Sprintf("job-%d", len(m.submitted)),
		RequestID: fmt.Sprintf("req-%d", len(m.submitted)),
		Request:   req,
		Status:    domain.RunPending,
		Steps:     []domain.JobStep{},
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job, nil
}

func (m *mockJobs) List(_ context.Context) ([]domain.Job, error) {
	jobs := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (m *mockJobs) Cancel(_ context.Context, id string) error {
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	m.cancelled = append(m.cancelled, id)
	job.Status = domain.RunCancelled
	return nil
}

func (m *mockJobs) Wait(ctx context.Context, id string) (*domain.Job, error) {
	return m.Get(ctx, id)
}

func (m *mockJobs) Shutdown(context.Context) error { return nil }

// mockRuns implements driving.RunService for testing.
type mockRuns struct {
	records   map[string]*domain.RunRecord
	artifacts map[string]map[string][]byte
	limits    []int
}

func newMockRuns() *mockRuns {
	return &mockRuns{
		records: map[string]*domain.RunRecord{
			"req-1": {RequestID: "req-1", Mode: domain.PipelineSingleStage, Status: domain.RunCompleted, Scenario: "library"},
		},
		artifacts: map[string]map[string][]byte{
			"req-1": {
				"scenario.txt":     []byte("library"),
				"use_case.puml":    []byte("@startuml\n@enduml"),
				"use_case.png":     []byte("\x89PNG"),
				"llm_response.txt": []byte("reply"),
			},
		},
	}
}

func (m *mockRuns) List(_ context.Context, limit int) ([]domain.RunRecord, error) {
	m.limits = append(m.limits, limit)
	out := make([]domain.RunRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRuns) Get(_ context.Context, requestID string) (*domain.RunRecord, error) {
	r, ok := m.records[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
	}
	return r, nil
}

func (m *mockRuns) Artifacts(_ context.Context, requestID string) ([]domain.ArtifactInfo, error) {
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

func (m *mockRuns) Artifact(_ context.Context, requestID, name string) ([]byte, error) {
	data, ok := m.artifacts[requestID][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, requestID, name)
	}
	return data, nil
}

func (m *mockRuns) Record(context.Context, domain.ScenarioRequest, *domain.RunResult, time.Time) error {
	return nil
}

// mockIndex implements driving.IndexService for testing.
type mockIndex struct {
	info     *domain.IndexInfo
	infoErr  error
	buildErr error
	results  []domain.ScoredPassage
	builds   int
	queries  []string
	ks       []int
}

func (m *mockIndex) Ensure(context.Context) (domain.IndexAction, error) {
	return domain.IndexLoaded, nil
}

func (m *mockIndex) Build(context.Context) (*domain.IndexInfo, error) {
	m.builds++
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	return m.info, nil
}

func (m *mockIndex) Info(context.Context) (*domain.IndexInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return m.info, nil
}

func (m *mockIndex) Query(_ context.Context, text string, k int) ([]domain.ScoredPassage, error) {
	m.queries = append(m.queries, text)
	m.ks = append(m.ks, k)
	return m.results, nil
}
