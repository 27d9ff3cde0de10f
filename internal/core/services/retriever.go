package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// ContextSeparator joins retrieved passages into one context block.
const ContextSeparator = "\n\n"

// retrievedRule closes each passage in the retrieved context dump.
var retrievedRule = strings.Repeat("=", 50)

// Retriever fetches the passages most relevant to a scenario.
type Retriever struct {
	index driving.IndexService
	k     int
}

// NewRetriever creates a retriever returning k passages per query.
func NewRetriever(index driving.IndexService, k int) *Retriever {
	if k <= 0 {
		k = domain.DefaultTopK
	}
	return &Retriever{index: index, k: k}
}

// K returns the number of passages fetched per query.
func (r *Retriever) K() int {
	return r.k
}

// Retrieve returns the passages for query, best first. An empty index
// yields no passages and no error. Failures wrap domain.ErrRetrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.ScoredPassage, error) {
	passages, err := r.index.Query(ctx, query, r.k)
	if err != nil {
		return nil, err
	}
	logger.Debug("Retrieved %d passages", len(passages))
	return passages, nil
}

// PassageTexts returns the content of each passage in order.
func PassageTexts(passages []domain.ScoredPassage) []string {
	texts := make([]string, len(passages))
	for i := range passages {
		texts[i] = passages[i].Passage.Content
	}
	return texts
}

// JoinContext joins passage texts into the context block. No passages
// yield the empty string, which prompt assembly replaces with the sentinel.
func JoinContext(texts []string) string {
	return strings.Join(texts, ContextSeparator)
}

// FormatRetrievedContext renders the retrieved passages for the per-run dump.
func FormatRetrievedContext(texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "Document %d:\n%s\n%s\n", i+1, text, retrievedRule)
	}
	return b.String()
}
