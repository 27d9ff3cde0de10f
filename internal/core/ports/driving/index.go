package driving

import (
	"context"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// IndexService manages the passage index built from the reference documents.
type IndexService interface {
	// Ensure applies the startup policy: load when a usable index exists,
	// otherwise build. A corrupt or stale index is rebuilt.
	Ensure(ctx context.Context) (domain.IndexAction, error)

	// Build re-ingests the dataset and replaces the whole index.
	Build(ctx context.Context) (*domain.IndexInfo, error)

	// Info returns the current index metadata.
	Info(ctx context.Context) (*domain.IndexInfo, error)

	// Query returns the k passages most similar to text, best first.
	Query(ctx context.Context, text string, k int) ([]domain.ScoredPassage, error)
}
