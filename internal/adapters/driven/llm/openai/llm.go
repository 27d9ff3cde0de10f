// Package openai calls OpenAI-compatible chat completion endpoints.
package openai

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
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultLLMModel   = "gpt-4o-mini"
	DefaultLLMTimeout = domain.DefaultLLMTimeout
)

const providerName = "openai"

// finishLength is reported when the reply hit the token limit.
const finishLength = "length"

// LLMConfig configures an LLMService. Only APIKey is required; BaseURL may
// point at Azure OpenAI or any compatible gateway.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService is a stateless chat completion client. Each Generate call sends
// exactly one user message.
type LLMService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
	Stop        []string            `json:"stop,omitempty"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatCompletionMsg `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

// NewLLMService fails with domain.ErrAuthentication when no key is configured,
// so a misconfigured provider is caught before the first request.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, provider.MissingKey(providerName)
	}
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
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Generate returns the content of the first choice.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	payload, err := json.Marshal(chatCompletionRequest{
		Model:       s.model,
		Messages:    []chatCompletionMsg{{Role: "user", Content: prompt}},
		MaxTokens:   max(opts.MaxTokens, 0),
		Temperature: max(opts.Temperature, 0),
		Stop:        opts.StopWords,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	status, body, err := s.send(ctx, http.MethodPost, "/chat/completions", payload)
	if err != nil {
		return "", err
	}

	var out chatCompletionResponse
	decodeErr := json.Unmarshal(body, &out)

	switch {
	case status != http.StatusOK:
		msg := string(body)
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return "", provider.StatusError(providerName, status, msg)
	case decodeErr != nil:
		return "", fmt.Errorf("%w: %s: decode response: %w", domain.ErrProvider, providerName, decodeErr)
	case out.Error != nil:
		return "", fmt.Errorf("%w: %s: %s", domain.ErrProvider, providerName, out.Error.Message)
	case len(out.Choices) == 0:
		return "", fmt.Errorf("%w: %s: no response choices returned", domain.ErrProvider, providerName)
	}

	choice := out.Choices[0]
	logger.Debug("openai: %s used %d prompt and %d completion tokens",
		s.model, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	if choice.FinishReason == finishLength {
		logger.Warn("openai: reply from %s was cut at the token limit", s.model)
	}
	return choice.Message.Content, nil
}

// ModelName returns the configured model.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without spending tokens.
func (s *LLMService) Ping(ctx context.Context) error {
	status, body, err := s.send(ctx, http.MethodGet, "/models", nil)
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

// send performs one authenticated round trip and returns the status and body.
func (s *LLMService) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", providerName, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
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
