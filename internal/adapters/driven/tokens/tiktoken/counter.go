// Package tiktoken counts prompt tokens with the tiktoken BPE encodings.
package tiktoken

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Ensure Counter implements the interface.
var _ driven.TokenCounter = (*Counter)(nil)

// DefaultEncoding is used when the model has no known encoding.
const DefaultEncoding = "cl100k_base"

// charsPerToken approximates English BPE density when no encoding can be loaded.
const charsPerToken = 4

// encoder is the part of *tiktoken.Tiktoken the counter uses.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// Counter counts tokens for one model. The encoding is loaded on first use;
// if it cannot be loaded (the BPE ranks are fetched on demand) the counter
// falls back to a character estimate.
type Counter struct {
	model string

	once sync.Once
	enc  encoder
}

// New creates a counter for model.
func New(model string) *Counter {
	return &Counter{model: model}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(c.load)
	if c.enc == nil {
		return estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from a real encoding.
func (c *Counter) Exact() bool {
	c.once.Do(c.load)
	return c.enc != nil
}

func (c *Counter) load() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
	}
	if err != nil {
		logger.Warn("token encoding unavailable, estimating counts: %v", err)
		return
	}
	c.enc = enc
}

func estimate(text string) int {
	n := len([]rune(text))
	return (n + charsPerToken - 1) / charsPerToken
}
