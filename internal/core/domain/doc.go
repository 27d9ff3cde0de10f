// Package domain defines the core business entities for umlgen.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: Plain text extracted from a reference PDF
//   - Passage: An overlapping window of document text with its embedding
//   - ScenarioRequest: A user scenario plus optional expertise notes
//   - DiagramUnit: A named PlantUML block extracted from an LLM response
//   - RunResult: Per-diagram outcomes of one pipeline run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
