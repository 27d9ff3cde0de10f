package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

const libraryScenario = "A library member borrows a book and pays a late fee."

type pipelineFixture struct {
	index     *IndexService
	embedder  *keywordEmbedder
	llm       *mockLLM
	renderer  *mockRenderer
	artifacts *mapArtifacts
	observer  *recordingObserver
	progress  *progressLog
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, docs []domain.Document, mode domain.PipelineMode, replies ...string) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		llm:       &mockLLM{replies: replies},
		renderer:  &mockRenderer{},
		artifacts: newMapArtifacts(),
		observer:  &recordingObserver{},
		progress:  &progressLog{},
	}
	f.index, _, _, f.embedder = newTestIndexService(docs)
	_, err := f.index.Ensure(context.Background())
	require.NoError(t, err)

	assembler := NewPromptAssembler(newMockPrompts(), wordCounter{}, 0)
	opts := driven.GenerateOptions{Temperature: domain.DefaultLLMTemperature}
	f.pipeline = NewPipeline(PipelineConfig{
		Retriever: NewRetriever(f.index, domain.DefaultTopK),
		Assembler: assembler,
		LLM:       f.llm,
		Extractor: plantumlExtractor,
		Renderer: NewDiagramRenderer(
			f.renderer, f.llm, assembler, plantumlExtractor, f.artifacts, 3, opts, f.observer),
		Artifacts:   f.artifacts,
		DefaultMode: mode,
		Generate:    opts,
		Observer:    f.observer,
		NewID:       func() string { return "req-1" },
	})
	return f
}

func (f *pipelineFixture) generate(ctx context.Context, req domain.ScenarioRequest) (*domain.RunResult, error) {
	return f.pipeline.Generate(ctx, req, f.progress.record)
}

func TestPipeline_SingleStage(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: "  " + libraryScenario + "\n"})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, domain.PipelineSingleStage, result.Mode)
	assert.Equal(t, domain.RunCompleted, result.Status)
	assert.False(t, result.ExtractionEmpty)
	require.Len(t, result.Diagrams, 2)
	assert.Equal(t, "use_case_diagram", result.Diagrams[0].Name)
	assert.Equal(t, "class_diagram", result.Diagrams[1].Name)
	assert.Equal(t, 2, result.Rendered())

	// Inputs and outputs are persisted under the request ID
	assert.Equal(t, libraryScenario, f.artifacts.get("req-1", domain.ArtifactScenario))
	assert.Equal(t, domain.NoInformationProvided, f.artifacts.get("req-1", domain.ArtifactExpertise))
	assert.Contains(t, f.artifacts.get("req-1", domain.ArtifactRetrievedContext), "Document 1:\n")
	assert.Equal(t, twoDiagramReply, f.artifacts.get("req-1", domain.ArtifactLLMResponse))
	assert.Contains(t, f.artifacts.get("req-1", "class_diagram.puml"), "class Book")
	assert.Equal(t, "PNG:"+f.artifacts.get("req-1", "class_diagram.puml"), f.artifacts.get("req-1", "class_diagram.png"))
	_, err = f.artifacts.Get(context.Background(), "req-1", domain.ArtifactStage1Response)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	prompts := f.llm.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "SCENARIO:\n"+libraryScenario+"\n")
	assert.Contains(t, prompts[0], "EXPERTISE:\nNo information provided.")
	assert.Contains(t, prompts[0], "lends book copies")
	assert.InDelta(t, 0.001, f.llm.opts[0].Temperature, 1e-9)

	assert.Equal(t, []string{
		"validate=in_progress", "validate=completed",
		"retrieve=in_progress", "retrieve=completed",
		"generate=in_progress", "generate=completed",
		"extract=in_progress", "extract=completed",
		"persist=in_progress", "persist=completed",
		"render:use_case_diagram=in_progress", "render:use_case_diagram=completed",
		"render:class_diagram=in_progress", "render:class_diagram=completed",
	}, f.progress.steps())

	assert.Equal(t, []domain.RunStatus{domain.RunCompleted}, f.observer.runs)
	assert.Equal(t, []string{StageDiagrams}, f.observer.llm)
}

func TestPipeline_TwoStage(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, "ACTORS: Member, Librarian", twoDiagramReply)
	req := domain.ScenarioRequest{
		Scenario:  libraryScenario,
		Expertise: "Loans last 14 days.",
		Mode:      domain.PipelineTwoStage,
	}

	result, err := f.generate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.PipelineTwoStage, result.Mode)
	assert.Equal(t, domain.RunCompleted, result.Status)
	assert.Len(t, result.Diagrams, 2)

	assert.Equal(t, "ACTORS: Member, Librarian", f.artifacts.get("req-1", domain.ArtifactStage1Response))
	assert.Equal(t, "Loans last 14 days.", f.artifacts.get("req-1", domain.ArtifactExpertise))

	prompts := f.llm.calls()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "ANALYSE\n")
	assert.Contains(t, prompts[0], libraryScenario)
	assert.Equal(t,
		"DIAGRAMS FROM\n"+CompositeRequest(libraryScenario, "ACTORS: Member, Librarian", "Loans last 14 days."),
		prompts[1])

	steps := f.progress.steps()
	assert.Contains(t, steps, "generate_analysis=completed")
	assert.Equal(t, []string{StageAnalysis, StageDiagrams}, f.observer.llm)
}

func TestPipeline_DefaultModeFromConfig(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineTwoStage, "analysis", twoDiagramReply)

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	require.NoError(t, err)
	assert.Equal(t, domain.PipelineTwoStage, result.Mode)
	assert.Len(t, f.llm.calls(), 2)
}

func TestPipeline_EmptyIndexUsesSentinelContext(t *testing.T) {
	f := newPipelineFixture(t, nil, domain.PipelineSingleStage, twoDiagramReply)

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, result.Status)
	prompts := f.llm.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "CONTEXT:\nNo information provided.\n")

	dump, err := f.artifacts.Get(context.Background(), "req-1", domain.ArtifactRetrievedContext)
	require.NoError(t, err)
	assert.Empty(t, dump)
}

func TestPipeline_ExtractionEmpty(t *testing.T) {
	reply := "I could not produce diagrams for this scenario."
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, reply)

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, result.Status)
	assert.True(t, result.ExtractionEmpty)
	assert.Empty(t, result.Diagrams)
	assert.NotNil(t, result.Diagrams)
	assert.Equal(t, reply, f.artifacts.get("req-1", domain.ArtifactLLMResponse))
	assert.Empty(t, f.renderer.calls())
}

func TestPipeline_PartialSuccess(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	f.renderer.results = []error{nil, fmt.Errorf("%w: status 503", domain.ErrRenderUnavailable)}

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	require.NoError(t, err)
	assert.Equal(t, domain.RunPartial, result.Status)
	assert.Equal(t, domain.DiagramRendered, result.Diagrams[0].Status)
	assert.Equal(t, domain.DiagramUnavailable, result.Diagrams[1].Status)
	assert.Contains(t, f.progress.steps(), "render:class_diagram=failed")

	// The source is kept even though no image exists
	assert.Contains(t, f.artifacts.get("req-1", "class_diagram.puml"), "class Member")
	_, err = f.artifacts.Get(context.Background(), "req-1", "class_diagram.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPipeline_AllDiagramsFail(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	unavailable := fmt.Errorf("%w: status 502", domain.ErrRenderUnavailable)
	f.renderer.results = []error{unavailable, unavailable}

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	require.NoError(t, err, "per-diagram failures are not run errors")
	assert.Equal(t, domain.RunFailed, result.Status)
	assert.Equal(t, 0, result.Rendered())
}

func TestPipeline_InvalidRequest(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: "   "})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.llm.calls())
	assert.Empty(t, f.artifacts.writes)
	assert.Equal(t, []string{"validate=in_progress", "validate=failed"}, f.progress.steps())
}

func TestPipeline_CompletionError(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage)
	f.llm.errs = []error{fmt.Errorf("%w: status 401", domain.ErrAuthentication)}

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCompletion)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	require.NotNil(t, result, "a result exists once the request ID is allocated")
	assert.Equal(t, domain.RunFailed, result.Status)
	assert.Equal(t, "authentication", result.ErrorKind)
	assert.Equal(t, libraryScenario, f.artifacts.get("req-1", domain.ArtifactScenario))
	assert.Contains(t, f.progress.steps(), "generate=failed")
	assert.Equal(t, []domain.RunStatus{domain.RunFailed}, f.observer.runs)
}

func TestPipeline_AnalysisStageError(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineTwoStage)
	f.llm.errs = []error{fmt.Errorf("%w: status 500", domain.ErrProvider)}

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	assert.ErrorIs(t, err, domain.ErrCompletion)
	assert.Equal(t, domain.RunFailed, result.Status)
	assert.Len(t, f.llm.calls(), 1)
	assert.Contains(t, f.progress.steps(), "generate_analysis=failed")
}

func TestPipeline_RetrievalError(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	f.embedder.embedErr = fmt.Errorf("%w: status 500", domain.ErrProvider)

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	assert.ErrorIs(t, err, domain.ErrRetrieval)
	assert.Equal(t, domain.RunFailed, result.Status)
	assert.Equal(t, "retrieval", result.ErrorKind)
	assert.Empty(t, f.llm.calls())
}

func TestPipeline_PersistError(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	f.artifacts.putErr = errors.New("read-only file system")

	result, err := f.generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})

	assert.ErrorContains(t, err, "read-only file system")
	assert.Equal(t, domain.RunFailed, result.Status)
	assert.Contains(t, f.progress.steps(), "persist=failed")
}

func TestPipeline_CancelledDuringGeneration(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage)
	f.llm.block = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := f.pipeline.Generate(ctx, domain.ScenarioRequest{Scenario: libraryScenario}, func(p domain.Progress) {
		if p.Step == domain.StepGenerate && p.Status == domain.StepInProgress {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, domain.RunCancelled, result.Status)
	assert.Equal(t, "cancelled", result.ErrorKind)
}

func TestPipeline_CancelledBetweenDiagrams(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.renderer.onRender = func(int) { cancel() }

	result, err := f.generate(ctx, domain.ScenarioRequest{Scenario: libraryScenario})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunCancelled, result.Status)
	require.Len(t, result.Diagrams, 2)
	assert.Equal(t, domain.DiagramRendered, result.Diagrams[0].Status)
	assert.Equal(t, domain.DiagramCancelled, result.Diagrams[1].Status)
	assert.Len(t, f.renderer.calls(), 1)
	assert.Contains(t, f.progress.steps(), "render:class_diagram=skipped")
}

func TestPipeline_RequestIDs(t *testing.T) {
	t.Run("caller chosen", func(t *testing.T) {
		f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)

		result, err := f.pipeline.GenerateWithID(context.Background(),
			domain.ScenarioRequest{Scenario: libraryScenario}, "chosen", nil)

		require.NoError(t, err)
		assert.Equal(t, "chosen", result.RequestID)
		assert.Equal(t, twoDiagramReply, f.artifacts.get("chosen", domain.ArtifactLLMResponse))
	})

	t.Run("random by default", func(t *testing.T) {
		f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
		f.pipeline.newID = uuid.NewString

		result, err := f.pipeline.Generate(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario}, nil)

		require.NoError(t, err)
		_, perr := uuid.Parse(result.RequestID)
		assert.NoError(t, perr)
	})
}

func TestNewPipeline_InvalidDefaultMode(t *testing.T) {
	p := NewPipeline(PipelineConfig{DefaultMode: "bogus"})
	assert.Equal(t, domain.PipelineSingleStage, p.defaultMode)
}
