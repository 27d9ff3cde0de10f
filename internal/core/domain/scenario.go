package domain

import "strings"

// NoInformationProvided substitutes any empty optional prompt field.
const NoInformationProvided = "No information provided."

// PipelineMode selects how many LLM stages a run uses.
type PipelineMode string

// Available pipeline modes.
const (
	// PipelineSingleStage asks for diagrams directly from context and scenario.
	PipelineSingleStage PipelineMode = "single"

	// PipelineTwoStage first asks for an analysis, then for diagrams built from it.
	PipelineTwoStage PipelineMode = "two-stage"
)

// IsValid returns true if the mode is recognised.
func (m PipelineMode) IsValid() bool {
	switch m {
	case PipelineSingleStage, PipelineTwoStage:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m PipelineMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m PipelineMode) Description() string {
	switch m {
	case PipelineSingleStage:
		return "Single stage (one LLM call)"
	case PipelineTwoStage:
		return "Two stage (analysis, then diagrams)"
	default:
		return "Unknown"
	}
}

// AllPipelineModes returns all valid pipeline modes.
func AllPipelineModes() []PipelineMode {
	return []PipelineMode{PipelineSingleStage, PipelineTwoStage}
}

// ScenarioRequest is one user submission.
type ScenarioRequest struct {
	// Scenario is the free-text software scenario (required).
	Scenario string `json:"scenario" validate:"required,max=50000"`

	// Expertise holds optional domain notes.
	Expertise string `json:"expertise,omitempty" validate:"max=20000"`

	// Mode selects single or two-stage generation. Empty means the configured default.
	Mode PipelineMode `json:"mode,omitempty" validate:"omitempty,oneof=single two-stage"`
}

// Normalised returns a copy with surrounding whitespace removed.
func (r ScenarioRequest) Normalised() ScenarioRequest {
	r.Scenario = strings.TrimSpace(r.Scenario)
	r.Expertise = strings.TrimSpace(r.Expertise)
	return r
}

// ExpertiseOrSentinel returns the expertise text or NoInformationProvided.
func (r ScenarioRequest) ExpertiseOrSentinel() string {
	if strings.TrimSpace(r.Expertise) == "" {
		return NoInformationProvided
	}
	return r.Expertise
}
