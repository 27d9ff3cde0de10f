package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
)

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings    domain.AppSettings
	sets        map[string]string
	setErr      error
	validateErr error
}

func newMockSettingsService() *mockSettingsService {
	s := domain.DefaultAppSettings()
	s.LLM.APIKey = "sk-test-1234567890"
	s.Embedding.APIKey = "sk-test-1234567890"
	return &mockSettingsService{settings: s, sets: make(map[string]string)}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets[key] = value
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding = domain.EmbeddingSettings{Provider: provider, Model: model, APIKey: apiKey}
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.LLM.Provider = provider
	m.settings.LLM.Model = model
	m.settings.LLM.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return nil }

func (m *mockSettingsService) ValidateLLMConfig() error { return nil }

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	info     *domain.IndexInfo
	infoErr  error
	buildErr error
	results  []domain.ScoredPassage
	ensured  int
	built    int
	queryK   int
}

func (m *mockIndexService) Ensure(context.Context) (domain.IndexAction, error) {
	m.ensured++
	return domain.IndexLoaded, nil
}

func (m *mockIndexService) Build(context.Context) (*domain.IndexInfo, error) {
	m.built++
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	return m.info, nil
}

func (m *mockIndexService) Info(context.Context) (*domain.IndexInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return m.info, nil
}

func (m *mockIndexService) Query(_ context.Context, _ string, k int) ([]domain.ScoredPassage, error) {
	m.queryK = k
	return m.results, nil
}

// mockGenerationService is a mock implementation of driving.GenerationService.
// It replays progress events before returning the scripted result.
type mockGenerationService struct {
	progress []domain.Progress
	result   *domain.RunResult
	err      error
	requests []domain.ScenarioRequest
}

func (m *mockGenerationService) Generate(
	_ context.Context,
	req domain.ScenarioRequest,
	fn domain.ProgressFunc,
) (*domain.RunResult, error) {
	m.requests = append(m.requests, req)
	if fn != nil {
		for _, p := range m.progress {
			fn(p)
		}
	}
	return m.result, m.err
}

// mockRunService is a mock implementation of driving.RunService.
type mockRunService struct {
	records   []domain.RunRecord
	artifacts map[string][]domain.ArtifactInfo
	limit     int
}

func (m *mockRunService) List(_ context.Context, limit int) ([]domain.RunRecord, error) {
	m.limit = limit
	return m.records, nil
}

func (m *mockRunService) Get(_ context.Context, requestID string) (*domain.RunRecord, error) {
	for i := range m.records {
		if m.records[i].RequestID == requestID {
			return &m.records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
}

func (m *mockRunService) Artifacts(_ context.Context, requestID string) ([]domain.ArtifactInfo, error) {
	infos, ok := m.artifacts[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
	}
	return infos, nil
}

func (m *mockRunService) Artifact(context.Context, string, string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

func (m *mockRunService) Record(context.Context, domain.ScenarioRequest, *domain.RunResult, time.Time) error {
	return nil
}

// Verify mocks implement interfaces.
var (
	_ driving.SettingsService   = (*mockSettingsService)(nil)
	_ driving.IndexService      = (*mockIndexService)(nil)
	_ driving.GenerationService = (*mockGenerationService)(nil)
	_ driving.RunService        = (*mockRunService)(nil)
)
