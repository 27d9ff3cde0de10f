package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.GenerationService = (*Pipeline)(nil)

// Pipeline turns one scenario into rendered diagrams: retrieve, prompt,
// complete, extract, then render each diagram with repair. Every artifact
// is written under the request's own ID.
type Pipeline struct {
	retriever   *Retriever
	assembler   *PromptAssembler
	llm         driven.LLMService
	extractor   driven.DiagramExtractor
	renderer    *DiagramRenderer
	artifacts   driven.ArtifactStore
	defaultMode domain.PipelineMode
	genOpts     driven.GenerateOptions
	observer    driven.Observer
	newID       func() string
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	Retriever   *Retriever
	Assembler   *PromptAssembler
	LLM         driven.LLMService
	Extractor   driven.DiagramExtractor
	Renderer    *DiagramRenderer
	Artifacts   driven.ArtifactStore
	DefaultMode domain.PipelineMode
	Generate    driven.GenerateOptions
	Observer    driven.Observer

	// NewID allocates request IDs. Defaults to random UUIDs.
	NewID func() string
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	mode := cfg.DefaultMode
	if !mode.IsValid() {
		mode = domain.PipelineSingleStage
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Pipeline{
		retriever:   cfg.Retriever,
		assembler:   cfg.Assembler,
		llm:         cfg.LLM,
		extractor:   cfg.Extractor,
		renderer:    cfg.Renderer,
		artifacts:   cfg.Artifacts,
		defaultMode: mode,
		genOpts:     cfg.Generate,
		observer:    observerOrNop(cfg.Observer),
		newID:       newID,
	}
}

// run carries the state of one request through the pipeline.
type run struct {
	p        *Pipeline
	ctx      context.Context
	req      domain.ScenarioRequest
	result   *domain.RunResult
	progress domain.ProgressFunc
}

func (r *run) emit(step, diagram string, status domain.StepStatus, description string) {
	if r.progress == nil {
		return
	}
	r.progress(domain.Progress{Step: step, Diagram: diagram, Status: status, Description: description})
}

// fail stops the run with a hard error.
func (r *run) fail(step string, err error) (*domain.RunResult, error) {
	if r.ctx.Err() != nil {
		err = r.ctx.Err()
		r.result.Status = domain.RunCancelled
	} else {
		r.result.Status = domain.RunFailed
	}
	r.result.Error = err.Error()
	r.result.ErrorKind = domain.ErrorKind(err)
	r.emit(step, "", domain.StepFailed, err.Error())
	logger.Error("Run %s failed at %s: %v", r.result.RequestID, step, err)
	return r.result, err
}

func (r *run) put(name, content string) error {
	if _, err := r.p.artifacts.Put(r.ctx, r.result.RequestID, name, []byte(content)); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}

// Generate runs the pipeline synchronously. Invalid requests are rejected
// before a request ID is allocated, so the result is nil only then.
func (p *Pipeline) Generate(ctx context.Context, req domain.ScenarioRequest, fn domain.ProgressFunc) (*domain.RunResult, error) {
	return p.generate(ctx, req, "", fn)
}

// GenerateWithID runs the pipeline under a caller-chosen request ID.
// An empty ID allocates a new one.
func (p *Pipeline) GenerateWithID(
	ctx context.Context,
	req domain.ScenarioRequest,
	requestID string,
	fn domain.ProgressFunc,
) (*domain.RunResult, error) {
	return p.generate(ctx, req, requestID, fn)
}

//nolint:gocyclo // Orchestration function with necessary sequential steps
func (p *Pipeline) generate(
	ctx context.Context,
	req domain.ScenarioRequest,
	requestID string,
	fn domain.ProgressFunc,
) (*domain.RunResult, error) {
	start := time.Now()
	r := &run{p: p, ctx: ctx, progress: fn}

	// 1. Validate
	r.emit(domain.StepValidate, "", domain.StepInProgress, "")
	req, err := ValidateRequest(req)
	if err != nil {
		r.emit(domain.StepValidate, "", domain.StepFailed, err.Error())
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = p.defaultMode
	}
	r.req = req

	// 2. Allocate the request namespace
	if requestID == "" {
		requestID = p.newID()
	}
	r.result = &domain.RunResult{
		RequestID: requestID,
		Mode:      req.Mode,
		Status:    domain.RunRunning,
		Diagrams:  []domain.DiagramOutcome{},
	}
	defer func() { p.observer.ObserveRun(r.result, time.Since(start)) }()
	r.emit(domain.StepValidate, "", domain.StepCompleted, requestID)
	logger.Section("Run " + requestID)

	// 3. Persist the inputs
	if err := r.put(domain.ArtifactScenario, req.Scenario); err != nil {
		return r.fail(domain.StepPersist, err)
	}
	if err := r.put(domain.ArtifactExpertise, req.ExpertiseOrSentinel()); err != nil {
		return r.fail(domain.StepPersist, err)
	}

	// 4. Retrieve
	if err := ctx.Err(); err != nil {
		return r.fail(domain.StepRetrieve, err)
	}
	r.emit(domain.StepRetrieve, "", domain.StepInProgress, "")
	passages, err := p.retriever.Retrieve(ctx, req.Scenario)
	if err != nil {
		return r.fail(domain.StepRetrieve, err)
	}
	texts := PassageTexts(passages)
	if err := r.put(domain.ArtifactRetrievedContext, FormatRetrievedContext(texts)); err != nil {
		return r.fail(domain.StepRetrieve, err)
	}
	r.emit(domain.StepRetrieve, "", domain.StepCompleted, fmt.Sprintf("%d passages", len(texts)))

	// 5. Complete
	var reply string
	if req.Mode == domain.PipelineTwoStage {
		reply, err = r.twoStage(texts)
	} else {
		reply, err = r.singleStage(texts)
	}
	if err != nil {
		return r.fail(domain.StepGenerate, err)
	}

	// 6. Persist the raw response, even if it holds no diagrams
	if err := r.put(domain.ArtifactLLMResponse, reply); err != nil {
		return r.fail(domain.StepPersist, err)
	}

	// 7. Extract
	r.emit(domain.StepExtract, "", domain.StepInProgress, "")
	units := p.extractor.Extract(reply)
	if len(units) == 0 {
		r.result.ExtractionEmpty = true
		r.result.Settle()
		r.emit(domain.StepExtract, "", domain.StepCompleted, domain.ErrExtractionEmpty.Error())
		logger.Warn("Run %s: %v", requestID, domain.ErrExtractionEmpty)
		return r.result, nil
	}
	r.emit(domain.StepExtract, "", domain.StepCompleted, fmt.Sprintf("%d diagrams", len(units)))

	// 8. Persist sources, then render in extraction order
	r.emit(domain.StepPersist, "", domain.StepInProgress, "")
	for _, unit := range units {
		if err := r.put(domain.SourceArtifactName(unit.Name), unit.Source); err != nil {
			return r.fail(domain.StepPersist, err)
		}
	}
	r.emit(domain.StepPersist, "", domain.StepCompleted, "")

	for _, unit := range units {
		if ctx.Err() != nil {
			r.result.Diagrams = append(r.result.Diagrams, cancelled(domain.DiagramOutcome{
				Name:           unit.Name,
				Title:          domain.Title(unit.Name),
				SourceArtifact: domain.SourceArtifactName(unit.Name),
			}, ctx.Err()))
			r.emit(domain.StepRender, unit.Name, domain.StepSkipped, "cancelled")
			continue
		}

		r.emit(domain.StepRender, unit.Name, domain.StepInProgress, "")
		outcome := p.renderer.Render(ctx, requestID, unit)
		r.result.Diagrams = append(r.result.Diagrams, outcome)

		switch outcome.Status {
		case domain.DiagramRendered:
			r.emit(domain.StepRender, unit.Name, domain.StepCompleted, fmt.Sprintf("%d attempts", outcome.Attempts))
		case domain.DiagramCancelled:
			r.emit(domain.StepRender, unit.Name, domain.StepSkipped, outcome.Error)
		default:
			r.emit(domain.StepRender, unit.Name, domain.StepFailed, outcome.Error)
		}
	}

	// 9. Settle
	r.result.Settle()
	logger.Info("Run %s %s: %d of %d diagrams rendered",
		requestID, r.result.Status, r.result.Rendered(), len(r.result.Diagrams))
	if r.result.Status == domain.RunCancelled {
		return r.result, ctx.Err()
	}
	return r.result, nil
}

func (r *run) singleStage(texts []string) (string, error) {
	r.emit(domain.StepGenerate, "", domain.StepInProgress, "")
	prompt, _, err := r.p.assembler.AssembleWithContext(driven.PromptDiagrams, texts, map[string]string{
		FieldScenario:  r.req.Scenario,
		FieldExpertise: r.req.Expertise,
	})
	if err != nil {
		return "", err
	}
	reply, err := r.complete(StageDiagrams, prompt)
	if err != nil {
		return "", err
	}
	r.emit(domain.StepGenerate, "", domain.StepCompleted, "")
	return reply, nil
}

func (r *run) twoStage(texts []string) (string, error) {
	r.emit(domain.StepGenerateAnalysis, "", domain.StepInProgress, "")
	prompt, _, err := r.p.assembler.AssembleWithContext(driven.PromptAnalysis, texts, map[string]string{
		FieldScenario: r.req.Scenario,
	})
	if err != nil {
		return "", err
	}
	analysis, err := r.complete(StageAnalysis, prompt)
	if err != nil {
		r.emit(domain.StepGenerateAnalysis, "", domain.StepFailed, err.Error())
		return "", err
	}
	if err := r.put(domain.ArtifactStage1Response, analysis); err != nil {
		return "", err
	}
	r.emit(domain.StepGenerateAnalysis, "", domain.StepCompleted, "")

	if err := r.ctx.Err(); err != nil {
		return "", err
	}

	r.emit(domain.StepGenerate, "", domain.StepInProgress, "")
	prompt, err = r.p.assembler.Assemble(driven.PromptDiagramsFromAnalysis, map[string]string{
		FieldRequest: CompositeRequest(r.req.Scenario, analysis, r.req.Expertise),
	})
	if err != nil {
		return "", err
	}
	reply, err := r.complete(StageDiagrams, prompt)
	if err != nil {
		return "", err
	}
	r.emit(domain.StepGenerate, "", domain.StepCompleted, "")
	return reply, nil
}

// complete calls the LLM. Failures wrap domain.ErrCompletion.
func (r *run) complete(stage, prompt string) (string, error) {
	start := time.Now()
	reply, err := r.p.llm.Generate(r.ctx, prompt, r.p.genOpts)
	r.p.observer.ObserveLLM(stage, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrCompletion, stage, err)
	}
	logger.Debug("LLM %s reply: %d bytes", stage, len(reply))
	return reply, nil
}
