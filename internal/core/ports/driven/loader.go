package driven

import (
	"context"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// DocumentLoader extracts plain text from the reference document folder.
type DocumentLoader interface {
	// Load returns one Document per supported file in dir, sorted by file name.
	// An empty or missing folder yields no documents and no error.
	Load(ctx context.Context, dir string) ([]domain.Document, error)

	// SupportedExtensions returns the lower-case file extensions the loader reads.
	SupportedExtensions() []string
}
