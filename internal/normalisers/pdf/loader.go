// Package pdf loads the reference PDF folder into plain-text documents.
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Verify interface compliance.
var _ driven.DocumentLoader = (*Loader)(nil)

// TextExtractor returns the plain text of each page of a PDF, in page order.
// Pages that cannot be read are returned as empty strings.
type TextExtractor func(path string) ([]string, error)

// PageCounter returns the number of pages in a PDF.
type PageCounter func(path string) (int, error)

// Loader reads every PDF in a folder.
type Loader struct {
	extract TextExtractor
	count   PageCounter
	now     func() time.Time
}

// Option configures the loader.
type Option func(*Loader)

// WithTextExtractor replaces the page text extractor.
func WithTextExtractor(fn TextExtractor) Option {
	return func(l *Loader) {
		if fn != nil {
			l.extract = fn
		}
	}
}

// WithPageCounter replaces the page counter.
func WithPageCounter(fn PageCounter) Option {
	return func(l *Loader) {
		if fn != nil {
			l.count = fn
		}
	}
}

// New creates a PDF loader backed by ledongthuc/pdf for text and pdfcpu for page counts.
func New(opts ...Option) *Loader {
	l := &Loader{
		extract: extractPages,
		count:   api.PageCountFile,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SupportedExtensions returns the file extensions this loader reads.
func (l *Loader) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Load extracts every PDF directly inside dir, sorted by file name.
// A missing folder is created so the index can still be built empty.
func (l *Loader) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := l.loadFile(path)
		if err != nil {
			logger.Warn("pdf: skipping %s: %v", filepath.Base(path), err)
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			logger.Warn("pdf: %s has no extractable text", filepath.Base(path))
			continue
		}
		docs = append(docs, *doc)
	}

	logger.Debug("pdf: loaded %d of %d files from %s", len(docs), len(paths), dir)
	return docs, nil
}

func (l *Loader) loadFile(path string) (*domain.Document, error) {
	pages, err := l.safeExtract(path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	pageCount := len(pages)
	if n, err := l.count(path); err != nil {
		logger.Debug("pdf: page count for %s: %v", filepath.Base(path), err)
	} else {
		pageCount = n
	}

	return &domain.Document{
		ID:        uuid.New().String(),
		URI:       path,
		Title:     titleFromPath(path),
		Content:   b.String(),
		PageCount: pageCount,
		Metadata: map[string]any{
			"format":    "pdf",
			"file_name": filepath.Base(path),
		},
		ExtractedAt: l.now(),
	}, nil
}

// safeExtract runs the extractor, turning a panic on a malformed file into
// an error so one bad PDF cannot abort an index build.
func (l *Loader) safeExtract(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: malformed PDF: %v", domain.ErrInvalidInput, r)
		}
	}()
	return l.extract(path)
}

// extractPages reads page text with ledongthuc/pdf.
func extractPages(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("create PDF reader: %w", err)
	}

	pages := make([]string, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := plainText(page)
		if err != nil {
			logger.Warn("pdf: page %d of %s: %v", i, filepath.Base(path), err)
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

// plainText extracts one page, recovering from panics the parser raises on
// broken content streams so the remaining pages are still read.
func plainText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// titleFromPath turns "/data/uml_guide.pdf" into "uml guide".
func titleFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}
