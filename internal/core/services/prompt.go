package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// placeholderPattern matches {field} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Prompt field names.
const (
	FieldContext   = "context"
	FieldScenario  = "scenario"
	FieldExpertise = "expertise"
	FieldRequest   = "request"
	FieldName      = "name"
	FieldError     = "error"
	FieldSource    = "source"
)

// PromptAssembler fills named templates from the prompt store.
type PromptAssembler struct {
	prompts   driven.PromptStore
	counter   driven.TokenCounter
	maxTokens int
}

// NewPromptAssembler creates an assembler. counter may be nil; maxTokens
// of zero disables context trimming.
func NewPromptAssembler(prompts driven.PromptStore, counter driven.TokenCounter, maxTokens int) *PromptAssembler {
	return &PromptAssembler{prompts: prompts, counter: counter, maxTokens: maxTokens}
}

// Assemble loads the named template and substitutes fields.
func (a *PromptAssembler) Assemble(name string, fields map[string]string) (string, error) {
	template, err := a.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("%w: load prompt %q: %w", domain.ErrConfiguration, name, err)
	}
	prompt := Fill(template, fields)
	if a.counter != nil {
		logger.Debug("Prompt %q is %d tokens", name, a.counter.Count(prompt))
	}
	return prompt, nil
}

// AssembleWithContext assembles a template whose {context} field is built
// from passages, dropping whole passages from the end until the prompt fits
// the token budget. It returns the prompt and the passages actually used.
func (a *PromptAssembler) AssembleWithContext(name string, passages []string, fields map[string]string) (string, []string, error) {
	template, err := a.prompts.Load(name)
	if err != nil {
		return "", nil, fmt.Errorf("%w: load prompt %q: %w", domain.ErrConfiguration, name, err)
	}

	merged := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}

	used := passages
	for {
		merged[FieldContext] = JoinContext(used)
		prompt := Fill(template, merged)
		if a.counter == nil || a.maxTokens <= 0 {
			return prompt, used, nil
		}
		tokens := a.counter.Count(prompt)
		if tokens <= a.maxTokens || len(used) == 0 {
			if dropped := len(passages) - len(used); dropped > 0 {
				logger.Info("Dropped %d context passages to fit %d prompt tokens", dropped, a.maxTokens)
			}
			logger.Debug("Prompt %q is %d tokens", name, tokens)
			return prompt, used, nil
		}
		used = used[:len(used)-1]
	}
}

// Fill substitutes every {field} placeholder in template. Placeholders with
// no value, or a blank one, receive domain.NoInformationProvided.
// Substitution is single pass, so values containing braces are left alone.
func Fill(template string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := fields[name]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		return domain.NoInformationProvided
	})
}

// CompositeRequest builds the single stage-two field from the scenario,
// the stage-one analysis and the expertise notes.
func CompositeRequest(scenario, analysis, expertise string) string {
	return "User scenario:\n" + orSentinel(scenario) +
		"\n\nAnalysis:\n" + orSentinel(analysis) +
		"\n\nExpertise notes:\n" + orSentinel(expertise)
}

func orSentinel(s string) string {
	if strings.TrimSpace(s) == "" {
		return domain.NoInformationProvided
	}
	return s
}
