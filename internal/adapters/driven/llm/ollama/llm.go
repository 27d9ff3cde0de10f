// Package ollama calls a local Ollama server for completions.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/umlgen/internal/adapters/driven/provider"
	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

var _ driven.LLMService = (*LLMService)(nil)

// Defaults applied by NewLLMService.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultLLMModel   = "llama3.2"
	DefaultLLMTimeout = domain.DefaultLLMTimeout
)

const providerName = "ollama"

// LLMConfig configures an LLMService. Ollama needs no credential.
type LLMConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService uses the non-streaming /api/generate endpoint.
type LLMService struct {
	client  *http.Client
	baseURL string
	model   string
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	EvalCount  int    `json:"eval_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewLLMService never fails; an unreachable server surfaces on the first call.
func NewLLMService(cfg LLMConfig) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	return &LLMService{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

// Generate sends the prompt with streaming disabled and returns the full reply.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  s.model,
		Prompt: prompt,
		Options: &options{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
			Stop:        opts.StopWords,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	status, body, err := s.send(ctx, http.MethodPost, "/api/generate", payload)
	if err != nil {
		return "", err
	}

	var out generateResponse
	decodeErr := json.Unmarshal(body, &out)

	switch {
	case status == http.StatusNotFound:
		// Ollama answers 404 for models that were never pulled.
		return "", provider.StatusError(providerName, status,
			fmt.Sprintf("model %q is not available, run 'ollama pull %s'", s.model, s.model))
	case status != http.StatusOK:
		msg := string(body)
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", provider.StatusError(providerName, status, msg)
	case decodeErr != nil:
		return "", fmt.Errorf("%w: %s: decode response: %w", domain.ErrProvider, providerName, decodeErr)
	case out.Error != "":
		return "", fmt.Errorf("%w: %s: %s", domain.ErrProvider, providerName, out.Error)
	}

	logger.Debug("ollama: %s generated %d tokens", s.model, out.EvalCount)
	if out.DoneReason == "length" {
		logger.Warn("ollama: reply from %s was cut at the token limit", s.model)
	}
	return out.Response, nil
}

// ModelName returns the configured model.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping lists local models via /api/tags.
func (s *LLMService) Ping(ctx context.Context) error {
	status, body, err := s.send(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return provider.StatusError(providerName, status, string(body))
	}
	return nil
}

// Close is a no-op.
func (s *LLMService) Close() error {
	return nil
}

func (s *LLMService) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", providerName, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, provider.TransportError(providerName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, provider.TransportError(providerName, err)
	}
	return resp.StatusCode, body, nil
}
