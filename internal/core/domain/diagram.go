package domain

import "strings"

// DiagramUnit is one named PlantUML block extracted from an LLM response.
type DiagramUnit struct {
	// Name is the normalised, file-safe identifier (e.g. "class_diagram").
	Name string

	// Label is the label as written in the response (e.g. "Class Diagram").
	Label string

	// Source is the self-contained PlantUML text, start and end markers included.
	Source string
}

// Title converts a diagram name like "class_diagram" to "Class Diagram".
func Title(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// DiagramStatus is the terminal state of one diagram in a run.
type DiagramStatus string

// Possible diagram outcomes.
const (
	// DiagramRendered means an image was produced and persisted.
	DiagramRendered DiagramStatus = "rendered"

	// DiagramFailed means the renderer kept rejecting the source after repairs.
	DiagramFailed DiagramStatus = "failed"

	// DiagramUnavailable means the renderer could not be reached.
	DiagramUnavailable DiagramStatus = "unavailable"

	// DiagramCancelled means the run was cancelled before this diagram finished.
	DiagramCancelled DiagramStatus = "cancelled"
)

// DiagramOutcome reports what happened to one extracted diagram.
type DiagramOutcome struct {
	Name   string        `json:"name"`
	Title  string        `json:"title"`
	Status DiagramStatus `json:"status"`

	// Attempts counts render calls made for this diagram.
	Attempts int `json:"attempts"`

	// Repairs counts LLM repair rounds.
	Repairs int `json:"repairs"`

	// SourceArtifact and ImageArtifact are artifact names within the run.
	SourceArtifact string `json:"source_artifact"`
	ImageArtifact  string `json:"image_artifact,omitempty"`

	// Error is the failure text, empty on success.
	Error string `json:"error,omitempty"`

	// ErrorKind is the taxonomy name of the failure.
	ErrorKind string `json:"error_kind,omitempty"`
}

// RunStatus is the overall state of one pipeline run.
type RunStatus string

// Possible run statuses.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal returns true once the run can no longer change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunPartial, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RequestID string       `json:"request_id"`
	Mode      PipelineMode `json:"mode"`
	Status    RunStatus    `json:"status"`

	// ExtractionEmpty is set when the response contained no labelled diagrams.
	ExtractionEmpty bool `json:"extraction_empty"`

	Diagrams []DiagramOutcome `json:"diagrams"`

	// Error and ErrorKind describe a hard failure that stopped the run.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Rendered returns the number of diagrams that produced an image.
func (r *RunResult) Rendered() int {
	n := 0
	for i := range r.Diagrams {
		if r.Diagrams[i].Status == DiagramRendered {
			n++
		}
	}
	return n
}

// Settle derives the overall status from per-diagram outcomes.
// A run with nothing to render is completed.
func (r *RunResult) Settle() {
	if len(r.Diagrams) == 0 {
		r.Status = RunCompleted
		return
	}
	rendered := r.Rendered()
	for i := range r.Diagrams {
		if r.Diagrams[i].Status == DiagramCancelled {
			r.Status = RunCancelled
			return
		}
	}
	switch {
	case rendered == len(r.Diagrams):
		r.Status = RunCompleted
	case rendered == 0:
		r.Status = RunFailed
	default:
		r.Status = RunPartial
	}
}
