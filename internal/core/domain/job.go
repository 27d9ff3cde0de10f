package domain

import "time"

// Pipeline step names reported through progress callbacks.
const (
	StepValidate         = "validate"
	StepRetrieve         = "retrieve"
	StepGenerateAnalysis = "generate_analysis"
	StepGenerate         = "generate"
	StepExtract          = "extract"
	StepRender           = "render"
	StepPersist          = "persist"
)

// StepStatus is the state of one pipeline step.
type StepStatus string

// Possible step statuses.
const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Progress is one progress event emitted by a running pipeline.
type Progress struct {
	// Step is the step name, e.g. "retrieve" or "render".
	Step string `json:"step"`

	// Diagram is set for per-diagram steps.
	Diagram string `json:"diagram,omitempty"`

	Status      StepStatus `json:"status"`
	Description string     `json:"description,omitempty"`
}

// ProgressFunc receives progress events. Implementations must not block.
type ProgressFunc func(Progress)

// JobStep records the latest state of a step within a job.
type JobStep struct {
	Name        string     `json:"name"`
	Diagram     string     `json:"diagram,omitempty"`
	Status      StepStatus `json:"status"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Job is an asynchronous pipeline run.
type Job struct {
	ID        string          `json:"id"`
	RequestID string          `json:"request_id"`
	Request   ScenarioRequest `json:"request"`
	Status    RunStatus       `json:"status"`
	Steps     []JobStep       `json:"steps"`
	Result    *RunResult      `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Apply records a progress event, replacing the previous state of the same step.
func (j *Job) Apply(p Progress, now time.Time) {
	j.UpdatedAt = now
	for i := range j.Steps {
		if j.Steps[i].Name == p.Step && j.Steps[i].Diagram == p.Diagram {
			j.Steps[i].Status = p.Status
			j.Steps[i].Description = p.Description
			j.Steps[i].UpdatedAt = now
			return
		}
	}
	j.Steps = append(j.Steps, JobStep{
		Name:        p.Step,
		Diagram:     p.Diagram,
		Status:      p.Status,
		Description: p.Description,
		UpdatedAt:   now,
	})
}

// RunRecord is the persisted summary of a finished run.
type RunRecord struct {
	RequestID  string       `json:"request_id"`
	Mode       PipelineMode `json:"mode"`
	Status     RunStatus    `json:"status"`
	Scenario   string       `json:"scenario"`
	Result     *RunResult   `json:"result,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	FinishedAt time.Time    `json:"finished_at"`
}
