package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure PassageIndex implements the interface.
var _ driven.PassageIndex = (*PassageIndex)(nil)

// PassageIndex is an in-memory implementation of driven.PassageIndex.
// It lives for the process lifetime, so every start builds from scratch.
type PassageIndex struct {
	mu       sync.RWMutex
	info     *domain.IndexInfo
	passages []domain.Passage
}

// NewPassageIndex creates an empty in-memory passage index.
func NewPassageIndex() *PassageIndex {
	return &PassageIndex{}
}

// Info returns the index metadata or domain.ErrNotFound before the first build.
func (idx *PassageIndex) Info(_ context.Context) (*domain.IndexInfo, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.info == nil {
		return nil, domain.ErrNotFound
	}
	info := *idx.info
	return &info, nil
}

// Verify checks the stored passages against the metadata.
func (idx *PassageIndex) Verify(ctx context.Context) error {
	info, err := idx.Info(ctx)
	if err != nil {
		return err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.passages) != info.PassageCount {
		return fmt.Errorf("%w: metadata records %d passages, found %d",
			domain.ErrIndexCorrupt, info.PassageCount, len(idx.passages))
	}
	for i := range idx.passages {
		if len(idx.passages[i].Embedding) != info.Dimensions {
			return fmt.Errorf("%w: passage %s has %d dimensions, expected %d",
				domain.ErrIndexCorrupt, idx.passages[i].ID, len(idx.passages[i].Embedding), info.Dimensions)
		}
	}
	return nil
}

// Replace swaps the stored passages and metadata.
func (idx *PassageIndex) Replace(_ context.Context, info domain.IndexInfo, passages []domain.Passage) error {
	for i := range passages {
		if len(passages[i].Embedding) != info.Dimensions {
			return fmt.Errorf("%w: passage %s has %d dimensions, expected %d",
				domain.ErrInvalidInput, passages[i].ID, len(passages[i].Embedding), info.Dimensions)
		}
	}

	stored := make([]domain.Passage, len(passages))
	copy(stored, passages)
	info.PassageCount = len(stored)

	idx.mu.Lock()
	idx.info = &info
	idx.passages = stored
	idx.mu.Unlock()
	return nil
}

// Search returns the k passages most similar to query.
func (idx *PassageIndex) Search(_ context.Context, query []float32, k int) ([]domain.ScoredPassage, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return domain.RankPassages(query, idx.passages, k), nil
}

// Close is a no-op.
func (idx *PassageIndex) Close() error {
	return nil
}
