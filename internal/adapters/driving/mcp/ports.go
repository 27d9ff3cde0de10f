package mcp

import (
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Generation runs the diagram pipeline.
	Generation driving.GenerationService

	// Index answers context queries. Optional.
	Index driving.IndexService

	// Runs exposes past runs and their artifacts. Optional.
	Runs driving.RunService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Generation == nil {
		return ErrMissingGenerationService
	}
	return nil
}
