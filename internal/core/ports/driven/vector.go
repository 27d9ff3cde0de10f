package driven

import (
	"context"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// PassageIndex persists passages with their embeddings and answers
// similarity queries. The whole set is replaced on every build.
type PassageIndex interface {
	// Info returns the persisted index metadata.
	// Returns domain.ErrNotFound when nothing has been built yet and
	// domain.ErrIndexCorrupt when the persisted state cannot be read.
	Info(ctx context.Context) (*domain.IndexInfo, error)

	// Verify checks that every stored passage is readable and carries an
	// embedding of the recorded dimension. Returns domain.ErrIndexCorrupt otherwise.
	Verify(ctx context.Context) error

	// Replace atomically swaps the stored passages and metadata.
	Replace(ctx context.Context, info domain.IndexInfo, passages []domain.Passage) error

	// Search returns the k passages most similar to the query vector, best first.
	Search(ctx context.Context, query []float32, k int) ([]domain.ScoredPassage, error)

	// Close releases resources.
	Close() error
}
