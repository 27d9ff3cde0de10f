package driven

import (
	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// TextSplitter cuts document content into ordered, overlapping passages.
type TextSplitter interface {
	// Name returns the splitter name for logging and configuration.
	Name() string

	// Split returns the passages for a document, in document order.
	// Passages carry no embedding yet.
	Split(doc *domain.Document) ([]domain.Passage, error)
}

// DiagramExtractor pulls named PlantUML units out of LLM replies.
type DiagramExtractor interface {
	// Extract returns the labelled units in a reply, in source order.
	Extract(reply string) []domain.DiagramUnit

	// ExtractSource returns the single block in a repair reply.
	// Returns false when the reply holds no complete block.
	ExtractSource(reply string) (string, bool)
}
