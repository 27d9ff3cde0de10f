package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

func completedResult() *domain.RunResult {
	return &domain.RunResult{
		RequestID: "req-1",
		Mode:      domain.PipelineSingleStage,
		Status:    domain.RunCompleted,
		Diagrams: []domain.DiagramOutcome{
			{
				Name: "use_case", Title: "Use Case", Status: domain.DiagramRendered, Attempts: 1,
				SourceArtifact: "use_case.puml", ImageArtifact: "use_case.png",
			},
			{
				Name: "class", Title: "Class", Status: domain.DiagramRendered, Attempts: 2, Repairs: 1,
				SourceArtifact: "class.puml", ImageArtifact: "class.png",
			},
		},
	}
}

func TestGenerateCmd_Use(t *testing.T) {
	assert.Equal(t, "generate [scenario]", generateCmd.Use)
}

func TestGenerateCmd_Flags(t *testing.T) {
	for _, name := range []string{"file", "expertise", "expertise-file", "mode", "json"} {
		assert.NotNil(t, generateCmd.Flags().Lookup(name), name)
	}
}

func TestGenerateCmd_RequiresScenario(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "generate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a scenario is required")
}

func TestGenerateCmd_RejectsArgumentAndFile(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "generate", "a scenario", "--file", "scenario.txt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestGenerateCmd_PrintsProgressAndDiagrams(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.generation.progress = []domain.Progress{
		{Step: domain.StepRetrieve, Status: domain.StepInProgress},
		{Step: domain.StepRetrieve, Status: domain.StepCompleted, Description: "4 passages"},
		{Step: domain.StepRender, Diagram: "class", Status: domain.StepCompleted, Description: "2 attempts"},
	}
	ts.generation.result = completedResult()

	out, err := execute(t, "generate", "Members borrow books", "--mode", "two-stage", "--expertise", "UML")

	require.NoError(t, err)
	assert.Equal(t, 1, ts.index.ensured)
	assert.Contains(t, out, "Index loaded")
	assert.Contains(t, out, "[retrieve] completed: 4 passages")
	assert.NotContains(t, out, "[retrieve] in_progress")
	assert.Contains(t, out, "[render:class] completed: 2 attempts")
	assert.Contains(t, out, "Request req-1: completed")
	assert.Contains(t, out, "Use Case")
	assert.Contains(t, out, "class.png")
	assert.Contains(t, out, "2 of 2 diagrams rendered")

	require.Len(t, ts.generation.requests, 1)
	req := ts.generation.requests[0]
	assert.Equal(t, "Members borrow books", req.Scenario)
	assert.Equal(t, "UML", req.Expertise)
	assert.Equal(t, domain.PipelineTwoStage, req.Mode)
}

func TestGenerateCmd_ReadsFiles(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.generation.result = completedResult()

	dir := t.TempDir()
	scenario := filepath.Join(dir, "scenario.txt")
	expertise := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(scenario, []byte("A shop sells items."), 0o600))
	require.NoError(t, os.WriteFile(expertise, []byte("Use aggregation.\n"), 0o600))

	_, err := execute(t, "generate", "--file", scenario, "--expertise", "Retail", "--expertise-file", expertise)

	require.NoError(t, err)
	require.Len(t, ts.generation.requests, 1)
	assert.Equal(t, "A shop sells items.", ts.generation.requests[0].Scenario)
	assert.Equal(t, "Retail\nUse aggregation.", ts.generation.requests[0].Expertise)
}

func TestGenerateCmd_MissingFile(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "generate", "--file", filepath.Join(t.TempDir(), "missing.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario")
}

func TestGenerateCmd_JSON(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.generation.progress = []domain.Progress{
		{Step: domain.StepRetrieve, Status: domain.StepCompleted, Description: "4 passages"},
	}
	ts.generation.result = completedResult()

	out, err := execute(t, "generate", "library", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"request_id": "req-1"`)
	assert.Contains(t, out, `"status": "completed"`)
	assert.NotContains(t, out, "[retrieve]")
	assert.NotContains(t, out, "Index loaded")
}

func TestGenerateCmd_ExtractionEmpty(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.generation.result = &domain.RunResult{
		RequestID:       "req-2",
		Mode:            domain.PipelineSingleStage,
		Status:          domain.RunCompleted,
		ExtractionEmpty: true,
		Diagrams:        []domain.DiagramOutcome{},
	}

	out, err := execute(t, "generate", "library")

	require.NoError(t, err)
	assert.Contains(t, out, "no labelled diagrams")
}

func TestGenerateCmd_PartialSucceeds(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	result := completedResult()
	result.Status = domain.RunPartial
	result.Diagrams[1].Status = domain.DiagramFailed
	result.Diagrams[1].ImageArtifact = ""
	result.Diagrams[1].Error = "diagram \"class\" failed after 4 attempts"
	ts.generation.result = result

	out, err := execute(t, "generate", "library")

	require.NoError(t, err)
	assert.Contains(t, out, "1 of 2 diagrams rendered")
	assert.Contains(t, out, "failed after 4 attempts")
}

func TestGenerateCmd_FailedRunIsAnError(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	result := completedResult()
	result.Status = domain.RunFailed
	for i := range result.Diagrams {
		result.Diagrams[i].Status = domain.DiagramUnavailable
		result.Diagrams[i].ImageArtifact = ""
	}
	ts.generation.result = result

	_, err := execute(t, "generate", "library")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "req-1 failed")
}

func TestGenerateCmd_HardFailureKeepsRequestID(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.generation.result = &domain.RunResult{
		RequestID: "req-3",
		Status:    domain.RunFailed,
		Diagrams:  []domain.DiagramOutcome{},
		Error:     "completion failed",
	}
	ts.generation.err = fmt.Errorf("%w: diagrams: %w", domain.ErrCompletion, domain.ErrAuthentication)

	out, err := execute(t, "generate", "library")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "req-3")
	assert.Contains(t, out, "Error: completion failed")
}

func TestGenerateCmd_RejectedRequest(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.generation.err = fmt.Errorf("%w: scenario must not be empty", domain.ErrInvalidInput)

	_, err := execute(t, "generate", "   ")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "generation failed")
}
