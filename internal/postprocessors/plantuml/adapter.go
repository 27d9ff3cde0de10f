package plantuml

import (
	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.DiagramExtractor = Extractor{}

// Extractor exposes the package functions as a driven.DiagramExtractor.
type Extractor struct{}

// Extract returns the labelled units in reply.
func (Extractor) Extract(reply string) []domain.DiagramUnit {
	return Extract(reply)
}

// ExtractSource returns the single block in a repair reply.
func (Extractor) ExtractSource(reply string) (string, bool) {
	return ExtractSource(reply)
}
