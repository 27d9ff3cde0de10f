package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads LLM prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// The store uses lazy initialisation - files are only created when first accessed,
// not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptDiagrams: `You are a senior software architect who writes UML in PlantUML syntax.

Use the reference material below when it is relevant to the scenario.

Reference material:
{context}

Scenario:
{scenario}

Expertise notes from the requester:
{expertise}

Produce every UML diagram that helps explain this scenario (for example a use case diagram, a class diagram, a sequence diagram, an activity diagram and a component diagram).

Rules for each diagram:
- Start it with a line containing only @startuml and end it with a line containing only @enduml.
- The line immediately after @startuml must be a label of the form ' === Diagram Name ===
- Use valid PlantUML only. Do not nest diagrams and do not wrap them in code fences.`,

	driven.PromptAnalysis: `You are a senior software architect.

Reference material:
{context}

Scenario:
{scenario}

Analyse the scenario before any diagram is drawn. List the actors, the main use cases, the domain entities with their attributes and relationships, the key interactions in order, and the system components. Be precise and concise. Do not write any PlantUML yet.`,

	driven.PromptDiagramsFromAnalysis: `You are a senior software architect who writes UML in PlantUML syntax.

{request}

Using the analysis above, produce every UML diagram that helps explain the scenario.

Rules for each diagram:
- Start it with a line containing only @startuml and end it with a line containing only @enduml.
- The line immediately after @startuml must be a label of the form ' === Diagram Name ===
- Use valid PlantUML only. Do not nest diagrams and do not wrap them in code fences.`,

	driven.PromptRepair: `The PlantUML diagram "{name}" was rejected by the renderer.

Renderer error:
{error}

Diagram source:
{source}

Return the corrected diagram only, from @startuml to @enduml. Keep the intent of the diagram and change only what is needed to make it valid PlantUML.`,
}

// DefaultPrompt returns the embedded template for name.
func DefaultPrompt(name string) (string, bool) {
	prompt, ok := defaultPrompts[name]
	return prompt, ok
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.umlgen/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := DefaultHome()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Falls back to the embedded default if the file is missing or blank.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err == nil && prompt == "" {
		err = fmt.Errorf("prompt file %q is empty", name)
	}
	if err != nil {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Double-check so concurrent loads agree on one value
	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Never overwrite a user's edits
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	content := `# umlgen Prompts

This directory contains the prompt templates umlgen sends to the LLM.

## Files

- ` + "`diagrams.txt`" + ` - Single-stage generation of all diagrams
- ` + "`analysis.txt`" + ` - First stage of two-stage mode (scenario analysis)
- ` + "`diagrams_from_analysis.txt`" + ` - Second stage of two-stage mode
- ` + "`repair.txt`" + ` - Fixes a diagram the renderer rejected

## Placeholders

Templates use ` + "`{field}`" + ` placeholders:
- ` + "`{context}`" + ` - Passages retrieved from the reference PDFs
- ` + "`{scenario}`" + ` - The user's scenario
- ` + "`{expertise}`" + ` - Optional expertise notes
- ` + "`{request}`" + ` - Scenario, analysis and expertise combined (stage two)
- ` + "`{name}`" + `, ` + "`{error}`" + `, ` + "`{source}`" + ` - Repair inputs

A placeholder with no value is replaced by "No information provided."

Diagram prompts must keep asking for @startuml/@enduml blocks whose first
line is a label such as ' === Class Diagram ===, otherwise no diagrams are
extracted. Delete a file to restore its default.
`
	return os.WriteFile(path, []byte(content), 0600)
}
