package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

const brokenClassSource = "@startuml\nclass Book {\n@enduml"

func syntaxError(msg string) error {
	return &domain.RenderSyntaxError{StatusCode: 400, Message: msg}
}

func repairReply(body string) string {
	return "Fixed:\n```plantuml\n@startuml\n" + body + "\n@enduml\n```"
}

type renderFixture struct {
	renderer  *mockRenderer
	llm       *mockLLM
	artifacts *mapArtifacts
	observer  *recordingObserver
	diagrams  *DiagramRenderer
}

func newRenderFixture(maxRepairs int, results []error, replies ...string) *renderFixture {
	f := &renderFixture{
		renderer:  &mockRenderer{results: results},
		llm:       &mockLLM{replies: replies},
		artifacts: newMapArtifacts(),
		observer:  &recordingObserver{},
	}
	f.diagrams = NewDiagramRenderer(
		f.renderer,
		f.llm,
		NewPromptAssembler(newMockPrompts(), nil, 0),
		plantumlExtractor,
		f.artifacts,
		maxRepairs,
		driven.GenerateOptions{Temperature: 0.001},
		f.observer,
	)
	return f
}

func classUnit() domain.DiagramUnit {
	return domain.DiagramUnit{Name: "class_diagram", Label: "Class Diagram", Source: brokenClassSource}
}

func TestDiagramRenderer_FirstAttemptSucceeds(t *testing.T) {
	f := newRenderFixture(3, nil)

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramRendered, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 0, outcome.Repairs)
	assert.Equal(t, "Class Diagram", outcome.Title)
	assert.Equal(t, "class_diagram.puml", outcome.SourceArtifact)
	assert.Equal(t, "class_diagram.png", outcome.ImageArtifact)
	assert.Empty(t, outcome.Error)
	assert.Equal(t, "PNG:"+brokenClassSource, f.artifacts.get("req-1", "class_diagram.png"))
	assert.Empty(t, f.llm.calls(), "no repair for a clean render")
	assert.Equal(t, []string{"ok"}, f.observer.renders)
}

func TestDiagramRenderer_ImageNamedAfterRendererFormat(t *testing.T) {
	f := newRenderFixture(3, nil)
	f.renderer.format = "svg"

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	require.Equal(t, domain.DiagramRendered, outcome.Status)
	assert.Equal(t, "class_diagram.svg", outcome.ImageArtifact)
	assert.Equal(t, "PNG:"+brokenClassSource, f.artifacts.get("req-1", "class_diagram.svg"))
	assert.Empty(t, f.artifacts.get("req-1", "class_diagram.png"))
	assert.Equal(t, domain.ArtifactKindImage, domain.KindOf(outcome.ImageArtifact))
}

func TestDiagramRenderer_RepairThenSuccess(t *testing.T) {
	f := newRenderFixture(3, []error{syntaxError("Syntax Error? (line 2)")}, repairReply("class Book"))

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	require.Equal(t, domain.DiagramRendered, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 1, outcome.Repairs)

	fixed := "@startuml\nclass Book\n@enduml"
	assert.Equal(t, []string{brokenClassSource, fixed}, f.renderer.calls())
	assert.Equal(t, fixed, f.artifacts.get("req-1", "class_diagram.puml"), "repaired source overwrites the original")
	assert.Equal(t, "PNG:"+fixed, f.artifacts.get("req-1", "class_diagram.png"))

	prompts := f.llm.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "REPAIR Class Diagram")
	assert.Contains(t, prompts[0], "Syntax Error? (line 2)")
	assert.Contains(t, prompts[0], brokenClassSource)
	assert.InDelta(t, 0.001, f.llm.opts[0].Temperature, 1e-9)
	assert.Equal(t, []string{"render_syntax", "ok"}, f.observer.renders)
	assert.Equal(t, []string{StageRepair}, f.observer.llm)
}

func TestDiagramRenderer_ExhaustsRepairBudget(t *testing.T) {
	errs := []error{syntaxError("e1"), syntaxError("e2"), syntaxError("e3"), syntaxError("e4")}
	f := newRenderFixture(3, errs, repairReply("class A"), repairReply("class B"), repairReply("class C"))

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramFailed, outcome.Status)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, 3, outcome.Repairs)
	assert.Equal(t, "render_failure", outcome.ErrorKind)
	assert.Contains(t, outcome.Error, `diagram "class_diagram" failed after 4 attempts`)
	assert.Contains(t, outcome.Error, "e4")
	assert.Len(t, f.llm.calls(), 3)
	assert.Empty(t, outcome.ImageArtifact)
	assert.Equal(t, "@startuml\nclass C\n@enduml", f.artifacts.get("req-1", "class_diagram.puml"))
}

func TestDiagramRenderer_ZeroRepairBudget(t *testing.T) {
	f := newRenderFixture(0, []error{syntaxError("bad")})

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramFailed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, f.llm.calls())
}

func TestDiagramRenderer_UnavailableIsNotRepaired(t *testing.T) {
	unavailable := fmt.Errorf("%w: status 504", domain.ErrRenderUnavailable)
	f := newRenderFixture(3, []error{unavailable})

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramUnavailable, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 0, outcome.Repairs)
	assert.Equal(t, "render_unavailable", outcome.ErrorKind)
	assert.Empty(t, f.llm.calls())
	assert.Len(t, f.renderer.calls(), 1)
}

func TestDiagramRenderer_UnavailableAfterRepair(t *testing.T) {
	unavailable := fmt.Errorf("%w: connection refused", domain.ErrRenderUnavailable)
	f := newRenderFixture(3, []error{syntaxError("bad"), unavailable}, repairReply("class A"))

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramUnavailable, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 1, outcome.Repairs)
}

func TestDiagramRenderer_RepairFailures(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		llmErr   error
		wantKind string
	}{
		{
			name:     "reply without a diagram",
			reply:    "I cannot fix this.",
			wantKind: "render_failure",
		},
		{
			name:     "completion error",
			llmErr:   fmt.Errorf("%w: status 500", domain.ErrProvider),
			wantKind: "render_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRenderFixture(3, []error{syntaxError("bad")}, tt.reply)
			f.llm.errs = []error{tt.llmErr}

			outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

			assert.Equal(t, domain.DiagramFailed, outcome.Status)
			assert.Equal(t, 1, outcome.Attempts)
			assert.Equal(t, 1, outcome.Repairs)
			assert.Equal(t, tt.wantKind, outcome.ErrorKind)
			assert.Len(t, f.renderer.calls(), 1)
		})
	}
}

func TestDiagramRenderer_OtherRendererErrorFails(t *testing.T) {
	f := newRenderFixture(3, []error{errors.New("unexpected")})

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramFailed, outcome.Status)
	assert.Equal(t, "internal", outcome.ErrorKind)
	assert.Empty(t, f.llm.calls())
}

func TestDiagramRenderer_PersistFailure(t *testing.T) {
	f := newRenderFixture(3, nil)
	f.artifacts.putErr = errors.New("disk full")

	outcome := f.diagrams.Render(context.Background(), "req-1", classUnit())

	assert.Equal(t, domain.DiagramFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "disk full")
}

func TestDiagramRenderer_Cancelled(t *testing.T) {
	t.Run("before the first attempt", func(t *testing.T) {
		f := newRenderFixture(3, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		outcome := f.diagrams.Render(ctx, "req-1", classUnit())

		assert.Equal(t, domain.DiagramCancelled, outcome.Status)
		assert.Equal(t, 0, outcome.Attempts)
		assert.Equal(t, "cancelled", outcome.ErrorKind)
		assert.Empty(t, f.renderer.calls())
	})

	t.Run("during a render", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newRenderFixture(3, []error{syntaxError("bad")}, repairReply("class A"))
		f.renderer.onRender = func(int) { cancel() }

		outcome := f.diagrams.Render(ctx, "req-1", classUnit())

		assert.Equal(t, domain.DiagramCancelled, outcome.Status)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Empty(t, f.llm.calls(), "no repair once cancelled")
	})
}
