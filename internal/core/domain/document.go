package domain

import (
	"strings"
	"time"
)

// Document is the plain text of one reference PDF.
// It is the canonical representation after extraction.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// URI is the original location of the PDF.
	URI string

	// Title is the human-readable title (file name without extension).
	Title string

	// Content is the full extracted text before chunking.
	Content string

	// PageCount is the number of pages in the source PDF.
	PageCount int

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// ExtractedAt is when the text was extracted.
	ExtractedAt time.Time
}

// Passage is a contiguous span of document text.
// Passages are created at ingestion time and are immutable; a rebuild
// replaces the whole set.
type Passage struct {
	// ID is the unique identifier for the passage.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Source is the URI of the document the passage came from.
	Source string

	// Content is the text content of this passage.
	Content string

	// Position is the ordinal position within the document.
	Position int

	// Embedding is the vector representation for similarity search.
	Embedding []float32
}

// ScoredPassage is a passage returned from a similarity query.
type ScoredPassage struct {
	Passage Passage

	// Similarity is the cosine similarity to the query (higher is closer).
	Similarity float64
}

// Corpus joins document contents with newlines, in document order.
func Corpus(docs []Document) string {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	return strings.Join(contents, "\n")
}
