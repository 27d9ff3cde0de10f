package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDatasetDir = "dataset.dir"

	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMTemperature = "llm.temperature"
	keyLLMTimeout     = "llm.timeout"

	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"

	keyIndexBackend = "index.backend"
	keyIndexDSN     = "index.dsn"
	keyIndexTopK    = "index.top_k"

	keyChunkStrategy = "chunker.strategy"
	keyChunkSize     = "chunker.size"
	keyChunkOverlap  = "chunker.overlap"

	keyRendererURL      = "renderer.url"
	keyRendererTimeout  = "renderer.timeout"
	keyRendererRepairs  = "renderer.max_repair_attempts"
	keyRendererRPS      = "renderer.requests_per_second"
	keyRendererBurst    = "renderer.burst"
	keyArtifactsBackend = "artifacts.backend"
	keyArtifactsDir     = "artifacts.dir"
	keyArtifactsBucket  = "artifacts.bucket"
	keyArtifactsRegion  = "artifacts.region"
	keyArtifactsPrefix  = "artifacts.prefix"
	keyArtifactsURL     = "artifacts.endpoint"

	keyPipelineMode      = "pipeline.mode"
	keyPipelineMaxTokens = "pipeline.max_prompt_tokens"
)

// Environment variables consulted when the configuration holds no API key.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	EnvLLMAPIKey       = "UMLGEN_LLM_API_KEY"
	EnvEmbeddingAPIKey = "UMLGEN_EMBEDDING_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// valueKind describes how a settable key parses its value.
type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDuration
)

// settableKeys lists every key accepted by Set with its value kind and an
// optional validator for enumerated values.
var settableKeys = map[string]struct {
	kind  valueKind
	valid func(string) bool
}{
	keyDatasetDir:        {kind: kindString},
	keyLLMProvider:       {kind: kindString, valid: func(v string) bool { return domain.AIProvider(v).IsValid() }},
	keyLLMModel:          {kind: kindString},
	keyLLMBaseURL:        {kind: kindString},
	keyLLMAPIKey:         {kind: kindString},
	keyLLMTemperature:    {kind: kindFloat},
	keyLLMTimeout:        {kind: kindDuration},
	keyEmbedProvider:     {kind: kindString, valid: func(v string) bool { return domain.AIProvider(v).IsValid() }},
	keyEmbedModel:        {kind: kindString},
	keyEmbedBaseURL:      {kind: kindString},
	keyEmbedAPIKey:       {kind: kindString},
	keyIndexBackend:      {kind: kindString, valid: func(v string) bool { return domain.IndexBackend(v).IsValid() }},
	keyIndexDSN:          {kind: kindString},
	keyIndexTopK:         {kind: kindInt},
	keyChunkStrategy:     {kind: kindString},
	keyChunkSize:         {kind: kindInt},
	keyChunkOverlap:      {kind: kindInt},
	keyRendererURL:       {kind: kindString},
	keyRendererTimeout:   {kind: kindDuration},
	keyRendererRepairs:   {kind: kindInt},
	keyRendererRPS:       {kind: kindFloat},
	keyRendererBurst:     {kind: kindInt},
	keyArtifactsBackend:  {kind: kindString, valid: func(v string) bool { return domain.ArtifactBackend(v).IsValid() }},
	keyArtifactsDir:      {kind: kindString},
	keyArtifactsBucket:   {kind: kindString},
	keyArtifactsRegion:   {kind: kindString},
	keyArtifactsPrefix:   {kind: kindString},
	keyArtifactsURL:      {kind: kindString},
	keyPipelineMode:      {kind: kindString, valid: func(v string) bool { return domain.PipelineMode(v).IsValid() }},
	keyPipelineMaxTokens: {kind: kindInt},
}

// SettableKeys returns the configuration keys accepted by Set, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithEnv replaces the environment lookup, mainly for tests.
func WithEnv(getenv func(string) string) SettingsOption {
	return func(s *SettingsService) {
		if getenv != nil {
			s.getenv = getenv
		}
	}
}

// NewSettingsService creates a new settings service.
func NewSettingsService(
	configStore driven.ConfigStore,
	aiValidator driven.AIConfigValidator,
	opts ...SettingsOption,
) *SettingsService {
	s := &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		DatasetDir: s.getString(keyDatasetDir, defaults.DatasetDir),
		LLM: domain.LLMSettings{
			Provider:    s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			BaseURL:     s.configStore.GetString(keyLLMBaseURL), // No default - empty is valid for cloud providers
			APIKey:      s.configStore.GetString(keyLLMAPIKey),
			Temperature: s.getFloat(keyLLMTemperature, defaults.LLM.Temperature),
			Timeout:     s.getDuration(keyLLMTimeout, defaults.LLM.Timeout),
		},
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL),
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
		},
		Index: domain.IndexSettings{
			Backend: s.getIndexBackend(defaults.Index.Backend),
			DSN:     s.configStore.GetString(keyIndexDSN),
			TopK:    s.getInt(keyIndexTopK, defaults.Index.TopK),
		},
		Chunker: domain.ChunkerSettings{
			Strategy: s.getString(keyChunkStrategy, defaults.Chunker.Strategy),
			Size:     s.getInt(keyChunkSize, defaults.Chunker.Size),
			Overlap:  s.getCount(keyChunkOverlap, defaults.Chunker.Overlap),
		},
		Renderer: domain.RendererSettings{
			URL:               s.getString(keyRendererURL, defaults.Renderer.URL),
			Timeout:           s.getDuration(keyRendererTimeout, defaults.Renderer.Timeout),
			MaxRepairAttempts: s.getCount(keyRendererRepairs, defaults.Renderer.MaxRepairAttempts),
			RequestsPerSecond: s.getFloat(keyRendererRPS, defaults.Renderer.RequestsPerSecond),
			Burst:             s.getInt(keyRendererBurst, defaults.Renderer.Burst),
		},
		Artifacts: domain.ArtifactSettings{
			Backend:  s.getArtifactBackend(defaults.Artifacts.Backend),
			Dir:      s.configStore.GetString(keyArtifactsDir),
			Bucket:   s.configStore.GetString(keyArtifactsBucket),
			Region:   s.configStore.GetString(keyArtifactsRegion),
			Prefix:   s.configStore.GetString(keyArtifactsPrefix),
			Endpoint: s.configStore.GetString(keyArtifactsURL),
		},
		Pipeline: domain.PipelineSettings{
			Mode:            s.getPipelineMode(defaults.Pipeline.Mode),
			MaxPromptTokens: s.configStore.GetInt(keyPipelineMaxTokens),
		},
	}

	// Models default per provider, not globally
	settings.LLM.Model = s.getString(keyLLMModel, domain.DefaultLLMModels()[settings.LLM.Provider])
	settings.Embedding.Model = s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[settings.Embedding.Provider])

	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.envAPIKey(EnvLLMAPIKey, settings.LLM.Provider)
	}
	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.envAPIKey(EnvEmbeddingAPIKey, settings.Embedding.Provider)
	}

	return settings, nil
}

// envAPIKey returns the first key found in the application variable or
// the provider's conventional variable.
func (s *SettingsService) envAPIKey(appVar string, provider domain.AIProvider) string {
	if v := strings.TrimSpace(s.getenv(appVar)); v != "" {
		return v
	}
	switch provider {
	case domain.AIProviderOpenAI:
		return strings.TrimSpace(s.getenv(EnvOpenAIAPIKey))
	case domain.AIProviderGemini:
		return strings.TrimSpace(s.getenv(EnvGeminiAPIKey))
	default:
		return ""
	}
}

// Save persists application settings.
// API keys that came from the environment are not written to the file.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyDatasetDir, settings.DatasetDir},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTemperature, settings.LLM.Temperature},
		{keyLLMTimeout, settings.LLM.Timeout.String()},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyIndexBackend, string(settings.Index.Backend)},
		{keyIndexDSN, settings.Index.DSN},
		{keyIndexTopK, settings.Index.TopK},
		{keyChunkStrategy, settings.Chunker.Strategy},
		{keyChunkSize, settings.Chunker.Size},
		{keyChunkOverlap, settings.Chunker.Overlap},
		{keyRendererURL, settings.Renderer.URL},
		{keyRendererTimeout, settings.Renderer.Timeout.String()},
		{keyRendererRepairs, settings.Renderer.MaxRepairAttempts},
		{keyRendererRPS, settings.Renderer.RequestsPerSecond},
		{keyRendererBurst, settings.Renderer.Burst},
		{keyArtifactsBackend, string(settings.Artifacts.Backend)},
		{keyArtifactsDir, settings.Artifacts.Dir},
		{keyArtifactsBucket, settings.Artifacts.Bucket},
		{keyArtifactsRegion, settings.Artifacts.Region},
		{keyArtifactsPrefix, settings.Artifacts.Prefix},
		{keyArtifactsURL, settings.Artifacts.Endpoint},
		{keyPipelineMode, settings.Pipeline.Mode.String()},
		{keyPipelineMaxTokens, settings.Pipeline.MaxPromptTokens},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if key := settings.LLM.APIKey; key != "" && key != s.envAPIKey(EnvLLMAPIKey, settings.LLM.Provider) {
		if err := s.configStore.Set(keyLLMAPIKey, key); err != nil {
			return fmt.Errorf("save llm api_key: %w", err)
		}
	}
	if key := settings.Embedding.APIKey; key != "" && key != s.envAPIKey(EnvEmbeddingAPIKey, settings.Embedding.Provider) {
		if err := s.configStore.Set(keyEmbedAPIKey, key); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}

	return nil
}

// Set updates a single dotted configuration key, parsing the value to the
// key's type.
func (s *SettingsService) Set(key, value string) error {
	spec, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)
	if spec.valid != nil && !spec.valid(value) {
		return fmt.Errorf("%w: invalid value %q for %s", domain.ErrInvalidInput, value, key)
	}

	var parsed any
	switch spec.kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		parsed = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		parsed = f
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s must be a positive duration such as 30s", domain.ErrInvalidInput, key)
		}
		parsed = d.String()
	default:
		parsed = value
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid embedding provider: %s", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}

	// Local providers need a base URL, cloud providers use their default endpoint
	if provider.IsLocal() {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	if apiKey != "" {
		settings.Embedding.APIKey = apiKey
	}
	if provider.RequiresAPIKey() && settings.Embedding.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid LLM provider: %s", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider

	if model != "" {
		settings.LLM.Model = model
	} else {
		settings.LLM.Model = domain.DefaultLLMModels()[provider]
	}

	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.LLM.BaseURL = ""
	}

	if apiKey != "" {
		settings.LLM.APIKey = apiKey
	}
	if provider.RequiresAPIKey() && settings.LLM.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	return s.Save(settings)
}

// Validate checks that the settings are complete enough to run a generation.
// Every failure wraps domain.ErrConfiguration.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return ValidateSettings(settings)
}

// ValidateSettings checks a settings value without touching storage.
func ValidateSettings(settings *domain.AppSettings) error {
	var problems []string

	if !settings.LLM.IsConfigured() {
		problems = append(problems, fmt.Sprintf("llm provider %q is not configured (model and API key)", settings.LLM.Provider))
	}
	if !settings.Embedding.IsConfigured() {
		problems = append(problems, fmt.Sprintf("embedding provider %q is not configured (model and API key)", settings.Embedding.Provider))
	}
	if !settings.Pipeline.Mode.IsValid() {
		problems = append(problems, fmt.Sprintf("pipeline.mode %q is not valid", settings.Pipeline.Mode))
	}
	if settings.Index.TopK <= 0 {
		problems = append(problems, "index.top_k must be positive")
	}
	if settings.Index.Backend == domain.IndexBackendPgVector && settings.Index.DSN == "" {
		problems = append(problems, "index.dsn is required for the pgvector backend")
	}
	if settings.Chunker.Size <= 0 || settings.Chunker.Overlap < 0 || settings.Chunker.Overlap >= settings.Chunker.Size {
		problems = append(problems, "chunker.overlap must be smaller than chunker.size")
	}
	if settings.Renderer.URL == "" {
		problems = append(problems, "renderer.url is required")
	}
	if settings.Artifacts.Backend == domain.ArtifactBackendS3 && settings.Artifacts.Bucket == "" {
		problems = append(problems, "artifacts.bucket is required for the s3 backend")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

// getCount is getInt for settings where zero is meaningful. Missing,
// non-integer and negative values fall back to defaultVal.
func (s *SettingsService) getCount(key string, defaultVal int) int {
	raw, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch raw.(type) {
	case int, int64:
		if v := s.configStore.GetInt(key); v >= 0 {
			return v
		}
	}
	return defaultVal
}

// getFloat keeps an explicit zero, so a temperature of 0 is honoured.
func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

// getDuration accepts a duration string ("30s") or a number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if str := s.configStore.GetString(key); str != "" {
		if d, err := time.ParseDuration(str); err == nil && d > 0 {
			return d
		}
		return defaultVal
	}
	if secs := s.configStore.GetInt(key); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getIndexBackend(defaultVal domain.IndexBackend) domain.IndexBackend {
	backend := domain.IndexBackend(s.configStore.GetString(keyIndexBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func (s *SettingsService) getArtifactBackend(defaultVal domain.ArtifactBackend) domain.ArtifactBackend {
	backend := domain.ArtifactBackend(s.configStore.GetString(keyArtifactsBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func (s *SettingsService) getPipelineMode(defaultVal domain.PipelineMode) domain.PipelineMode {
	mode := domain.PipelineMode(s.configStore.GetString(keyPipelineMode))
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}
