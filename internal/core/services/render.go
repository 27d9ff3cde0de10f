package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// LLM stage names used for metrics and logs.
const (
	StageAnalysis = "analysis"
	StageDiagrams = "diagrams"
	StageRepair   = "repair"
)

// DiagramRenderer renders extracted diagrams, asking the LLM to repair
// sources the renderer rejects.
//
// Each diagram moves through Attempt, then Success or Syntax. A syntax
// error leads to Repair and another Attempt until the repair budget is
// spent. Unavailability is never repaired.
type DiagramRenderer struct {
	renderer   driven.DiagramRenderer
	llm        driven.LLMService
	assembler  *PromptAssembler
	extractor  driven.DiagramExtractor
	artifacts  driven.ArtifactStore
	maxRepairs int
	genOpts    driven.GenerateOptions
	observer   driven.Observer
}

// NewDiagramRenderer creates a renderer with a repair budget of maxRepairs
// LLM rounds per diagram.
func NewDiagramRenderer(
	renderer driven.DiagramRenderer,
	llm driven.LLMService,
	assembler *PromptAssembler,
	extractor driven.DiagramExtractor,
	artifacts driven.ArtifactStore,
	maxRepairs int,
	genOpts driven.GenerateOptions,
	observer driven.Observer,
) *DiagramRenderer {
	if maxRepairs < 0 {
		maxRepairs = 0
	}
	return &DiagramRenderer{
		renderer:   renderer,
		llm:        llm,
		assembler:  assembler,
		extractor:  extractor,
		artifacts:  artifacts,
		maxRepairs: maxRepairs,
		genOpts:    genOpts,
		observer:   observerOrNop(observer),
	}
}

// Render renders one unit and persists its image. Repaired sources
// overwrite the unit's .puml artifact before the next attempt.
func (d *DiagramRenderer) Render(ctx context.Context, requestID string, unit domain.DiagramUnit) domain.DiagramOutcome {
	outcome := domain.DiagramOutcome{
		Name:           unit.Name,
		Title:          domain.Title(unit.Name),
		SourceArtifact: domain.SourceArtifactName(unit.Name),
	}
	source := unit.Source

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(outcome, err)
		}

		outcome.Attempts++
		image, err := d.renderer.Render(ctx, source)
		d.observer.ObserveRender(err)

		if err == nil {
			name := domain.ImageArtifactName(unit.Name, d.renderer.Format())
			if _, err := d.artifacts.Put(ctx, requestID, name, image); err != nil {
				return failed(outcome, fmt.Errorf("persist %s: %w", name, err))
			}
			outcome.Status = domain.DiagramRendered
			outcome.ImageArtifact = name
			logger.Info("Rendered %s (%d attempts)", unit.Name, outcome.Attempts)
			return outcome
		}

		switch {
		case ctx.Err() != nil:
			return cancelled(outcome, ctx.Err())
		case errors.Is(err, domain.ErrRenderUnavailable):
			logger.Warn("Renderer unavailable for %s: %v", unit.Name, err)
			outcome.Status = domain.DiagramUnavailable
			outcome.Error = err.Error()
			outcome.ErrorKind = domain.ErrorKind(err)
			return outcome
		case !errors.Is(err, domain.ErrRenderSyntax):
			return failed(outcome, err)
		}

		if outcome.Repairs >= d.maxRepairs {
			return failed(outcome, &domain.RenderFailureError{
				Diagram:  unit.Name,
				Attempts: outcome.Attempts,
				Err:      err,
			})
		}

		logger.Info("Renderer rejected %s, requesting repair %d of %d", unit.Name, outcome.Repairs+1, d.maxRepairs)
		outcome.Repairs++
		repaired, rerr := d.repair(ctx, unit.Name, source, err)
		if rerr != nil {
			if ctx.Err() != nil {
				return cancelled(outcome, ctx.Err())
			}
			return failed(outcome, &domain.RenderFailureError{
				Diagram:  unit.Name,
				Attempts: outcome.Attempts,
				Err:      rerr,
			})
		}
		source = repaired

		if _, err := d.artifacts.Put(ctx, requestID, outcome.SourceArtifact, []byte(source)); err != nil {
			return failed(outcome, fmt.Errorf("persist %s: %w", outcome.SourceArtifact, err))
		}
	}
}

// repair asks the LLM for a corrected source.
func (d *DiagramRenderer) repair(ctx context.Context, name, source string, renderErr error) (string, error) {
	prompt, err := d.assembler.Assemble(driven.PromptRepair, map[string]string{
		FieldName:   domain.Title(name),
		FieldError:  renderErr.Error(),
		FieldSource: source,
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := d.llm.Generate(ctx, prompt, d.genOpts)
	d.observer.ObserveLLM(StageRepair, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: repair %s: %w", domain.ErrCompletion, name, err)
	}

	repaired, ok := d.extractor.ExtractSource(reply)
	if !ok {
		return "", fmt.Errorf("%w: repair reply for %s holds no diagram", domain.ErrExtractionEmpty, name)
	}
	return repaired, nil
}

func failed(outcome domain.DiagramOutcome, err error) domain.DiagramOutcome {
	logger.Warn("Diagram %s failed: %v", outcome.Name, err)
	outcome.Status = domain.DiagramFailed
	outcome.Error = err.Error()
	outcome.ErrorKind = domain.ErrorKind(err)
	return outcome
}

func cancelled(outcome domain.DiagramOutcome, err error) domain.DiagramOutcome {
	outcome.Status = domain.DiagramCancelled
	outcome.Error = err.Error()
	outcome.ErrorKind = domain.ErrorKind(err)
	return outcome
}
