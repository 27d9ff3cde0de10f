package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/postprocessors/plantuml"
)

// --- Mock implementations ---

// mockLoader implements driven.DocumentLoader for testing.
type mockLoader struct {
	docs    []domain.Document
	loadErr error
	calls   int
}

func (m *mockLoader) Load(_ context.Context, _ string) ([]domain.Document, error) {
	m.calls++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.docs, nil
}

func (m *mockLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

// paragraphSplitter implements driven.TextSplitter by splitting on blank lines.
type paragraphSplitter struct{}

func (paragraphSplitter) Name() string { return "paragraph" }

func (paragraphSplitter) Split(doc *domain.Document) ([]domain.Passage, error) {
	var passages []domain.Passage
	for i, part := range strings.Split(doc.Content, "\n\n") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		passages = append(passages, domain.Passage{
			ID:         fmt.Sprintf("%s-%d", doc.ID, i),
			DocumentID: doc.ID,
			Source:     doc.URI,
			Content:    part,
			Position:   i,
		})
	}
	return passages, nil
}

// keywordEmbedder implements driven.EmbeddingService with one dimension per
// keyword, so similarity follows shared vocabulary.
type keywordEmbedder struct {
	model    string
	keywords []string
	embedErr error
	batches  int
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{
		model:    "mock-embed",
		keywords: []string{"library", "book", "member", "order", "payment", "actor"},
	}
}

func (m *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(m.keywords)+1)
	for i, k := range m.keywords {
		v[i] = float32(strings.Count(lower, k))
	}
	// Constant component keeps every vector non-zero
	v[len(m.keywords)] = 0.1
	return v
}

func (m *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.vector(text), nil
}

func (m *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batches++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *keywordEmbedder) Dimensions() int { return len(m.keywords) + 1 }
func (m *keywordEmbedder) ModelName() string { return m.model }
func (m *keywordEmbedder) Ping(context.Context) error { return nil }
func (m *keywordEmbedder) Close() error { return nil }

// mockLLM implements driven.LLMService with scripted replies.
type mockLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
	opts    []driven.GenerateOptions

	// block, when set, makes Generate wait for ctx cancellation.
	block bool
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	call := len(m.prompts) - 1
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
	}
	if call < len(m.errs) && m.errs[call] != nil {
		return "", m.errs[call]
	}
	if call < len(m.replies) {
		return m.replies[call], nil
	}
	return "", nil
}

func (m *mockLLM) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *mockLLM) ModelName() string { return "mock-llm" }
func (m *mockLLM) Ping(context.Context) error { return nil }
func (m *mockLLM) Close() error { return nil }

// mockRenderer implements driven.DiagramRenderer with scripted results per call.
type mockRenderer struct {
	mu      sync.Mutex
	results []error
	sources []string
	format  string

	// onRender runs before each call returns.
	onRender func(call int)
}

func (m *mockRenderer) Render(_ context.Context, source string) ([]byte, error) {
	m.mu.Lock()
	m.sources = append(m.sources, source)
	call := len(m.sources) - 1
	hook := m.onRender
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if call < len(m.results) && m.results[call] != nil {
		return nil, m.results[call]
	}
	return []byte("PNG:" + source), nil
}

func (m *mockRenderer) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sources...)
}

func (m *mockRenderer) Format() string {
	if m.format == "" {
		return "png"
	}
	return m.format
}

// mockPrompts implements driven.PromptStore over a map.
type mockPrompts struct {
	templates map[string]string
}

func newMockPrompts() *mockPrompts {
	return &mockPrompts{templates: map[string]string{
		driven.PromptDiagrams:             "CONTEXT:\n{context}\nSCENARIO:\n{scenario}\nEXPERTISE:\n{expertise}",
		driven.PromptAnalysis:             "ANALYSE\n{context}\n{scenario}",
		driven.PromptDiagramsFromAnalysis: "DIAGRAMS FROM\n{request}",
		driven.PromptRepair:               "REPAIR {name}\n{error}\n{source}",
	}}
}

func (m *mockPrompts) Load(name string) (string, error) {
	t, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("no prompt %q", name)
	}
	return t, nil
}

func (m *mockPrompts) Reload() {}

// wordCounter implements driven.TokenCounter by counting words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

// mapArtifacts implements driven.ArtifactStore in memory.
type mapArtifacts struct {
	mu     sync.Mutex
	data   map[string]map[string][]byte
	writes []string
	putErr error
}

func newMapArtifacts() *mapArtifacts {
	return &mapArtifacts{data: make(map[string]map[string][]byte)}
}

func (m *mapArtifacts) Put(_ context.Context, requestID, name string, data []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[requestID] == nil {
		m.data[requestID] = make(map[string][]byte)
	}
	m.data[requestID][name] = append([]byte(nil), data...)
	m.writes = append(m.writes, requestID+"/"+name)
	return "mem://" + requestID + "/" + name, nil
}

func (m *mapArtifacts) Get(_ context.Context, requestID, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[requestID][name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *mapArtifacts) get(requestID, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[requestID][name])
}

func (m *mapArtifacts) List(_ context.Context, requestID string) ([]domain.ArtifactInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.data[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	infos := make([]domain.ArtifactInfo, 0, len(files))
	for name, data := range files {
		infos = append(infos, domain.ArtifactInfo{
			Name:       name,
			Kind:       domain.KindOf(name),
			Size:       int64(len(data)),
			ModifiedAt: time.Now(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (m *mapArtifacts) Delete(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, requestID)
	return nil
}

// recordingObserver implements driven.Observer and keeps what it saw.
type recordingObserver struct {
	mu       sync.Mutex
	runs     []domain.RunStatus
	renders  []string
	llm      []string
	index    []domain.IndexAction
	active   int
	finished int
}

func (o *recordingObserver) ObserveRun(result *domain.RunResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, result.Status)
}

func (o *recordingObserver) ObserveRender(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	label := "ok"
	if err != nil {
		label = domain.ErrorKind(err)
	}
	o.renders = append(o.renders, label)
}

func (o *recordingObserver) ObserveLLM(stage string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.llm = append(o.llm, stage)
}

func (o *recordingObserver) ObserveIndex(action domain.IndexAction, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.index = append(o.index, action)
}

func (o *recordingObserver) JobStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active++
}

func (o *recordingObserver) JobFinished() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
	o.finished++
}

// --- Helpers ---

// progressLog collects progress events safely.
type progressLog struct {
	mu     sync.Mutex
	events []domain.Progress
}

func (l *progressLog) record(p domain.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *progressLog) steps() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		name := e.Step
		if e.Diagram != "" {
			name += ":" + e.Diagram
		}
		out = append(out, name+"="+string(e.Status))
	}
	return out
}

// plantumlExtractor is the real extractor; extraction is pure.
var plantumlExtractor = plantuml.Extractor{}

const twoDiagramReply = `Here you go.

@startuml
' === Use Case Diagram ===
actor Member
Member --> (Borrow Book)
@enduml

@startuml
' === Class Diagram ===
class Book
class Member
@enduml
`
