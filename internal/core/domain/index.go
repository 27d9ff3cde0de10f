package domain

import "time"

// IndexInfo describes the persisted state of the vector index.
type IndexInfo struct {
	// EmbeddingModel is the model every stored embedding was computed with.
	EmbeddingModel string

	// Dimensions is the embedding vector length.
	Dimensions int

	// PassageCount is the number of stored passages.
	PassageCount int

	// DocumentCount is the number of source documents at build time.
	DocumentCount int

	// BuiltAt is when the index was last built.
	BuiltAt time.Time
}

// IsEmpty reports whether the index holds no passages.
func (i *IndexInfo) IsEmpty() bool {
	return i == nil || i.PassageCount == 0
}

// IndexAction records what Ensure did to make the index queryable.
type IndexAction string

// Possible index actions.
const (
	// IndexLoaded means an existing index was reused without re-embedding.
	IndexLoaded IndexAction = "loaded"

	// IndexBuilt means the index was absent or empty and was built.
	IndexBuilt IndexAction = "built"

	// IndexRebuiltCorrupt means the persisted index failed to load and was rebuilt.
	IndexRebuiltCorrupt IndexAction = "rebuilt_corrupt"

	// IndexRebuiltStale means the index used a different embedding model and was rebuilt.
	IndexRebuiltStale IndexAction = "rebuilt_stale"
)
