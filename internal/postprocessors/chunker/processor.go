// Package chunker provides a recursive separator-based text splitter.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// DefaultSeparators go from paragraph to sentence to word to character.
// The empty separator is a hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Verify interface compliance.
var _ driven.TextSplitter = (*Processor)(nil)

// Processor splits document content into overlapping chunks, preferring
// the coarsest separator that keeps chunks under the size limit.
// Sizes are measured in runes.
type Processor struct {
	name       string
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy.
// A list holding only "" produces fixed-size windows.
func WithSeparators(seps []string) Option {
	return func(p *Processor) {
		if len(seps) > 0 {
			p.separators = seps
		}
	}
}

// WithName sets the name reported by Name.
func WithName(name string) Option {
	return func(p *Processor) {
		if name != "" {
			p.name = name
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		name:       "recursive",
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return p.name
}

// Split cuts the document content into passages.
func (p *Processor) Split(doc *domain.Document) ([]domain.Passage, error) {
	if doc == nil || strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	texts := p.SplitText(doc.Content)
	passages := make([]domain.Passage, 0, len(texts))
	for i, text := range texts {
		passages = append(passages, domain.Passage{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Source:     doc.URI,
			Content:    text,
			Position:   i,
		})
	}
	return passages, nil
}

// SplitText returns the trimmed, non-empty chunks of text in order.
func (p *Processor) SplitText(text string) []string {
	return p.split(text, p.separators)
}

func (p *Processor) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var chunks, fitting []string
	for _, piece := range strings.Split(text, separator) {
		if piece == "" {
			continue
		}
		if runeLen(piece) < p.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, p.merge(fitting, separator)...)
			fitting = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, p.hardCut(piece)...)
		} else {
			chunks = append(chunks, p.split(piece, finer)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, p.merge(fitting, separator)...)
	}
	return chunks
}

// merge greedily packs pieces into windows of at most chunkSize runes,
// carrying up to overlap runes of trailing pieces into the next window.
func (p *Processor) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var (
		chunks  []string
		current []string
		total   int
	)

	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, piece := range pieces {
		n := runeLen(piece)
		if joinedLen(n) > p.chunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > p.overlap || (joinedLen(n) > p.chunkSize && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total = joinedLen(n)
		current = append(current, piece)
	}

	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// hardCut splits an unbreakable piece into fixed windows.
func (p *Processor) hardCut(piece string) []string {
	return p.merge(strings.Split(piece, ""), "")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
