package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/postprocessors/chunker"
)

// Splitter names.
const (
	SplitterRecursive = "recursive"
	SplitterFixed     = "fixed"
)

// RegisterDefaults registers all built-in splitters with the registry.
// Call this during application initialisation to enable standard splitters.
func RegisterDefaults(r *Registry) {
	r.Register(SplitterRecursive, func(cfg map[string]any) (driven.TextSplitter, error) {
		return buildChunker(SplitterRecursive, chunker.DefaultSeparators, cfg)
	})
	r.Register(SplitterFixed, func(cfg map[string]any) (driven.TextSplitter, error) {
		return buildChunker(SplitterFixed, []string{""}, cfg)
	})
}

// NewSplitter builds the splitter named by the chunker settings.
// An empty strategy selects the recursive splitter.
func NewSplitter(s domain.ChunkerSettings) (driven.TextSplitter, error) {
	r := NewRegistry()
	RegisterDefaults(r)

	name := s.Strategy
	if name == "" {
		name = SplitterRecursive
	}
	return r.Build(name, map[string]any{
		"chunk_size": s.Size,
		"overlap":    s.Overlap,
	})
}

// buildChunker creates a chunker from generic config.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1200)
//   - overlap (int): Overlapping characters between chunks (default: 200)
func buildChunker(name string, separators []string, cfg map[string]any) (driven.TextSplitter, error) {
	opts := []chunker.Option{chunker.WithName(name), chunker.WithSeparators(separators)}

	size := chunker.DefaultChunkSize
	overlap := chunker.DefaultChunkOverlap
	if cfg != nil {
		if v, ok := getIntFromConfig(cfg, "chunk_size"); ok && v > 0 {
			size = v
		}
		if v, ok := getIntFromConfig(cfg, "overlap"); ok && v >= 0 {
			overlap = v
		}
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			domain.ErrConfiguration, overlap, size)
	}

	opts = append(opts, chunker.WithChunkSize(size), chunker.WithOverlap(overlap))
	return chunker.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
