package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini is Google Gemini cloud API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible APIs).
	BaseURL string

	// APIKey is the API key (for cloud providers).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if e.Provider == "" || e.Model == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the fixed model identifier used for every call.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible APIs).
	BaseURL string

	// APIKey is the API key (for cloud providers).
	APIKey string

	// Temperature is kept near zero so output stays parseable.
	Temperature float64

	// Timeout bounds a single completion round trip.
	Timeout time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if l.Provider == "" || l.Model == "" {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// IndexBackend selects where passages and embeddings are persisted.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendSQLite persists the index in a local SQLite file.
	IndexBackendSQLite IndexBackend = "sqlite"

	// IndexBackendMemory keeps the index in memory for the process lifetime.
	IndexBackendMemory IndexBackend = "memory"

	// IndexBackendPgVector stores the index in PostgreSQL with pgvector.
	IndexBackendPgVector IndexBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	switch b {
	case IndexBackendSQLite, IndexBackendMemory, IndexBackendPgVector:
		return true
	default:
		return false
	}
}

// IndexSettings holds vector index configuration.
type IndexSettings struct {
	Backend IndexBackend

	// DSN is the PostgreSQL connection string for the pgvector backend.
	DSN string

	// TopK is the number of passages retrieved per query.
	TopK int
}

// ChunkerSettings holds text splitting configuration.
type ChunkerSettings struct {
	// Strategy names the splitter ("recursive" or "fixed").
	Strategy string

	// Size is the target passage length in characters.
	Size int

	// Overlap is the number of characters shared by consecutive passages.
	Overlap int
}

// RendererSettings holds diagram rendering configuration.
type RendererSettings struct {
	// URL is the rendering endpoint that accepts {"diagram_source": ...}.
	URL string

	// Timeout bounds a single render call.
	Timeout time.Duration

	// MaxRepairAttempts caps LLM repair rounds per diagram.
	MaxRepairAttempts int

	// RequestsPerSecond and Burst limit calls to the renderer.
	RequestsPerSecond float64
	Burst             int
}

// ArtifactBackend selects where run artifacts are written.
type ArtifactBackend string

// Available artifact backends.
const (
	ArtifactBackendLocal ArtifactBackend = "local"
	ArtifactBackendS3    ArtifactBackend = "s3"
)

// IsValid returns true if the backend is recognised.
func (b ArtifactBackend) IsValid() bool {
	return b == ArtifactBackendLocal || b == ArtifactBackendS3
}

// ArtifactSettings holds artifact storage configuration.
type ArtifactSettings struct {
	Backend ArtifactBackend

	// Dir is the local runs directory (default ~/.umlgen/runs).
	Dir string

	// S3 settings.
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string
}

// PipelineSettings holds per-run generation configuration.
type PipelineSettings struct {
	// Mode is the default pipeline mode when a request does not set one.
	Mode PipelineMode

	// MaxPromptTokens trims retrieved context when positive.
	MaxPromptTokens int
}

// AppSettings holds all application settings.
type AppSettings struct {
	// DatasetDir is the folder of reference PDFs.
	DatasetDir string

	LLM       LLMSettings
	Embedding EmbeddingSettings
	Index     IndexSettings
	Chunker   ChunkerSettings
	Renderer  RendererSettings
	Artifacts ArtifactSettings
	Pipeline  PipelineSettings
}

// Default values.
const (
	DefaultDatasetDir        = "dataset"
	DefaultLLMTemperature    = 0.001
	DefaultLLMTimeout        = 120 * time.Second
	DefaultTopK              = 4
	DefaultChunkStrategy     = "recursive"
	DefaultChunkSize         = 1200
	DefaultChunkOverlap      = 200
	DefaultRendererURL       = "https://kroki.io/plantuml/png"
	DefaultRenderTimeout     = 30 * time.Second
	DefaultMaxRepairAttempts = 3
	DefaultRendererRPS       = 2.0
	DefaultRendererBurst     = 4
)

// DefaultAppSettings returns settings with sensible defaults.
// API keys are never defaulted.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		DatasetDir: DefaultDatasetDir,
		LLM: LLMSettings{
			Provider:    AIProviderOpenAI,
			Model:       DefaultLLMModels()[AIProviderOpenAI],
			Temperature: DefaultLLMTemperature,
			Timeout:     DefaultLLMTimeout,
		},
		Embedding: EmbeddingSettings{
			Provider: AIProviderOpenAI,
			Model:    DefaultEmbeddingModels()[AIProviderOpenAI],
		},
		Index: IndexSettings{
			Backend: IndexBackendSQLite,
			TopK:    DefaultTopK,
		},
		Chunker: ChunkerSettings{
			Strategy: DefaultChunkStrategy,
			Size:     DefaultChunkSize,
			Overlap:  DefaultChunkOverlap,
		},
		Renderer: RendererSettings{
			URL:               DefaultRendererURL,
			Timeout:           DefaultRenderTimeout,
			MaxRepairAttempts: DefaultMaxRepairAttempts,
			RequestsPerSecond: DefaultRendererRPS,
			Burst:             DefaultRendererBurst,
		},
		Artifacts: ArtifactSettings{
			Backend: ArtifactBackendLocal,
		},
		Pipeline: PipelineSettings{
			Mode: PipelineSingleStage,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "llama3.2",
		AIProviderOpenAI: "gpt-4o-mini",
		AIProviderGemini: "gemini-1.5-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004": 768,
	}
}
