package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
// Templates use {field} placeholders.
const (
	// PromptDiagrams asks for all diagrams in one pass.
	// Fields: {context}, {scenario}, {expertise}.
	PromptDiagrams = "diagrams"

	// PromptAnalysis is the first stage of the two-stage pipeline.
	// Fields: {context}, {scenario}.
	PromptAnalysis = "analysis"

	// PromptDiagramsFromAnalysis is the second stage of the two-stage pipeline.
	// Fields: {request}.
	PromptDiagramsFromAnalysis = "diagrams_from_analysis"

	// PromptRepair asks the LLM to fix PlantUML the renderer rejected.
	// Fields: {name}, {error}, {source}.
	PromptRepair = "repair"
)

// PromptNames lists every prompt the application loads.
func PromptNames() []string {
	return []string{PromptDiagrams, PromptAnalysis, PromptDiagramsFromAnalysis, PromptRepair}
}
