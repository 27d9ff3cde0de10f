package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// DefaultEmbedBatchSize is the number of passages embedded per request.
const DefaultEmbedBatchSize = 64

// IndexService builds and queries the passage index.
//
// Queries take a read lock; Ensure and Build take the write lock so a
// rebuild fully replaces what readers see.
type IndexService struct {
	index      driven.PassageIndex
	loader     driven.DocumentLoader
	splitter   driven.TextSplitter
	embedder   driven.EmbeddingService
	datasetDir string
	topK       int
	batchSize  int
	observer   driven.Observer

	mu sync.RWMutex
}

// IndexOption configures an IndexService.
type IndexOption func(*IndexService)

// WithTopK sets the default number of passages returned by Query.
func WithTopK(k int) IndexOption {
	return func(s *IndexService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithEmbedBatchSize sets how many passages are embedded per request.
func WithEmbedBatchSize(n int) IndexOption {
	return func(s *IndexService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithIndexObserver sets the metrics observer.
func WithIndexObserver(o driven.Observer) IndexOption {
	return func(s *IndexService) {
		s.observer = observerOrNop(o)
	}
}

// NewIndexService creates an index service over the reference documents in datasetDir.
func NewIndexService(
	index driven.PassageIndex,
	loader driven.DocumentLoader,
	splitter driven.TextSplitter,
	embedder driven.EmbeddingService,
	datasetDir string,
	opts ...IndexOption,
) *IndexService {
	s := &IndexService{
		index:      index,
		loader:     loader,
		splitter:   splitter,
		embedder:   embedder,
		datasetDir: datasetDir,
		topK:       domain.DefaultTopK,
		batchSize:  DefaultEmbedBatchSize,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure loads the index when a usable one exists and builds it otherwise.
// A corrupt index, or one built with a different embedding model, is rebuilt.
func (s *IndexService) Ensure(ctx context.Context) (domain.IndexAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, err := s.decide(ctx)
	if err != nil {
		return "", err
	}

	if action == domain.IndexLoaded {
		info, err := s.index.Info(ctx)
		if err != nil {
			return "", fmt.Errorf("read index info: %w", err)
		}
		logger.Info("Loaded index: %d passages from %d documents (%s)",
			info.PassageCount, info.DocumentCount, info.EmbeddingModel)
		s.observer.ObserveIndex(action, info.PassageCount)
		return action, nil
	}

	info, err := s.build(ctx)
	if err != nil {
		return "", err
	}
	s.observer.ObserveIndex(action, info.PassageCount)
	return action, nil
}

// decide inspects the persisted index and returns what Ensure must do.
func (s *IndexService) decide(ctx context.Context) (domain.IndexAction, error) {
	info, err := s.index.Info(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Info("No index found, building")
		return domain.IndexBuilt, nil
	case errors.Is(err, domain.ErrIndexCorrupt):
		logger.Warn("Index is corrupt, rebuilding: %v", err)
		return domain.IndexRebuiltCorrupt, nil
	case err != nil:
		return "", fmt.Errorf("read index info: %w", err)
	}

	if info.IsEmpty() {
		logger.Info("Index is empty, building")
		return domain.IndexBuilt, nil
	}

	if model := s.embedder.ModelName(); info.EmbeddingModel != model {
		logger.Warn("Index was built with %q but %q is configured, rebuilding", info.EmbeddingModel, model)
		return domain.IndexRebuiltStale, nil
	}

	if err := s.index.Verify(ctx); err != nil {
		if errors.Is(err, domain.ErrIndexCorrupt) {
			logger.Warn("Index failed verification, rebuilding: %v", err)
			return domain.IndexRebuiltCorrupt, nil
		}
		return "", fmt.Errorf("verify index: %w", err)
	}

	return domain.IndexLoaded, nil
}

// Build re-ingests the dataset and replaces the whole index.
func (s *IndexService) Build(ctx context.Context) (*domain.IndexInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	s.observer.ObserveIndex(domain.IndexBuilt, info.PassageCount)
	return info, nil
}

// build does the work of Build. Caller must hold the write lock.
func (s *IndexService) build(ctx context.Context) (*domain.IndexInfo, error) {
	logger.Section("Building index")
	start := time.Now()

	docs, err := s.loader.Load(ctx, s.datasetDir)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	//nolint:prealloc // size unknown until every document is split
	var passages []domain.Passage
	for i := range docs {
		split, err := s.splitter.Split(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", docs[i].URI, err)
		}
		passages = append(passages, split...)
	}
	logger.Debug("Corpus holds %d characters", utf8.RuneCountInString(domain.Corpus(docs)))
	logger.Info("Split %d documents into %d passages (%s)", len(docs), len(passages), s.splitter.Name())

	if err := s.embedPassages(ctx, passages); err != nil {
		return nil, err
	}

	info := domain.IndexInfo{
		EmbeddingModel: s.embedder.ModelName(),
		Dimensions:     s.embedder.Dimensions(),
		PassageCount:   len(passages),
		DocumentCount:  len(docs),
		BuiltAt:        time.Now().UTC(),
	}
	if len(passages) > 0 {
		info.Dimensions = len(passages[0].Embedding)
	}

	if err := s.index.Replace(ctx, info, passages); err != nil {
		return nil, fmt.Errorf("replace index: %w", err)
	}

	logger.Info("Index built in %s", time.Since(start).Round(time.Millisecond))
	return &info, nil
}

// embedPassages fills in passage embeddings batch by batch.
func (s *IndexService) embedPassages(ctx context.Context, passages []domain.Passage) error {
	for start := 0; start < len(passages); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+s.batchSize, len(passages))
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = passages[i].Content
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed passages %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: embedded %d passages, got %d vectors", domain.ErrProvider, len(texts), len(vectors))
		}
		for i, v := range vectors {
			passages[start+i].Embedding = v
		}
		logger.Debug("Embedded passages %d-%d of %d", start+1, end, len(passages))
	}
	return nil
}

// Info returns the current index metadata.
func (s *IndexService) Info(ctx context.Context) (*domain.IndexInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Info(ctx)
}

// Query returns the k passages most similar to text, best first.
// A non-positive k uses the configured default. Failures wrap domain.ErrRetrieval.
func (s *IndexService) Query(ctx context.Context, text string, k int) ([]domain.ScoredPassage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if k <= 0 {
		k = s.topK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrieval, err)
	}

	results, err := s.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %w", domain.ErrRetrieval, err)
	}
	return results, nil
}
