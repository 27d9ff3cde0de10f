// Package app wires configured adapters into the core services.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/umlgen/internal/adapters/driven/ai"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/artifacts/local"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/artifacts/s3"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/config/file"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/renderer/kroki"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/storage/pgvector"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/umlgen/internal/adapters/driven/tokens/tiktoken"
	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/core/services"
	"github.com/custodia-labs/umlgen/internal/logger"
	"github.com/custodia-labs/umlgen/internal/metrics"
	"github.com/custodia-labs/umlgen/internal/normalisers/pdf"
	"github.com/custodia-labs/umlgen/internal/postprocessors"
	"github.com/custodia-labs/umlgen/internal/postprocessors/plantuml"
)

// Directory names under the home directory.
const (
	dataDirName    = "data"
	promptsDirName = "prompts"
	runsDirName    = "runs"
)

// App holds the wired services for one process.
type App struct {
	Home     string
	Settings *services.SettingsService
	Index    *services.IndexService
	Pipeline *services.Pipeline
	Jobs     *services.JobRunner
	Runs     *services.RunService
	Metrics  *metrics.Recorder
	Prompts  driven.PromptStore

	// DatasetDir is the resolved folder of reference PDFs.
	DatasetDir string

	closers []func() error
}

// NewSettingsService opens the TOML config under home.
func NewSettingsService(home string) (*services.SettingsService, error) {
	store, err := file.NewConfigStore(home)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return services.NewSettingsService(store, ai.NewConfigValidator()), nil
}

// ResolveHome returns home, or ~/.umlgen when it is empty.
func ResolveHome(home string) (string, error) {
	if home != "" {
		return home, nil
	}
	return file.DefaultHome()
}

// Build creates every adapter named by the current settings and wires the
// services. Nothing is fetched from the network.
//
//nolint:gocyclo // Wiring function with one branch per backend
func Build(ctx context.Context, home string, settingsService *services.SettingsService) (*App, error) {
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := services.ValidateSettings(settings); err != nil {
		return nil, err
	}

	a := &App{Home: home, Settings: settingsService, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close() //nolint:errcheck // best-effort cleanup after a failed build
		}
	}()

	embedder, err := ai.CreateEmbeddingService(ctx, &settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)

	llm, err := ai.CreateLLMService(ctx, &settings.LLM)
	if err != nil {
		return nil, fmt.Errorf("LLM service: %w", err)
	}
	a.closers = append(a.closers, llm.Close)

	index, runs, err := a.openStores(ctx, settings.Index)
	if err != nil {
		return nil, err
	}

	artifacts, err := a.openArtifacts(ctx, settings.Artifacts)
	if err != nil {
		return nil, err
	}

	splitter, err := postprocessors.NewSplitter(settings.Chunker)
	if err != nil {
		return nil, err
	}

	prompts, err := file.NewPromptStore(filepath.Join(home, promptsDirName))
	if err != nil {
		return nil, err
	}
	a.Prompts = prompts

	renderer, err := kroki.New(kroki.Config{
		URL:     settings.Renderer.URL,
		Timeout: settings.Renderer.Timeout,
		RateLimit: kroki.RateLimitConfig{
			RequestsPerSecond: settings.Renderer.RequestsPerSecond,
			BurstSize:         settings.Renderer.Burst,
		},
	})
	if err != nil {
		return nil, err
	}

	a.DatasetDir = settings.DatasetDir
	a.Index = services.NewIndexService(index, pdf.New(), splitter, embedder, a.DatasetDir,
		services.WithTopK(settings.Index.TopK),
		services.WithIndexObserver(a.Metrics),
	)

	genOpts := driven.GenerateOptions{Temperature: settings.LLM.Temperature}
	assembler := services.NewPromptAssembler(prompts, tiktoken.New(settings.LLM.Model), settings.Pipeline.MaxPromptTokens)
	extractor := plantuml.Extractor{}

	a.Pipeline = services.NewPipeline(services.PipelineConfig{
		Retriever: services.NewRetriever(a.Index, settings.Index.TopK),
		Assembler: assembler,
		LLM:       llm,
		Extractor: extractor,
		Renderer: services.NewDiagramRenderer(
			renderer, llm, assembler, extractor, artifacts,
			settings.Renderer.MaxRepairAttempts, genOpts, a.Metrics),
		Artifacts:   artifacts,
		DefaultMode: settings.Pipeline.Mode,
		Generate:    genOpts,
		Observer:    a.Metrics,
	})
	a.Runs = services.NewRunService(runs, artifacts)
	a.Jobs = services.NewJobRunner(a.Pipeline, a.Runs, a.Metrics)

	logger.Debug("Wired %s LLM (%s), %s embeddings (%s), %s index, %s artifacts",
		settings.LLM.Provider, llm.ModelName(), settings.Embedding.Provider, embedder.ModelName(),
		settings.Index.Backend, settings.Artifacts.Backend)

	ok = true
	return a, nil
}

// openStores opens the passage index and run history for the configured backend.
func (a *App) openStores(ctx context.Context, cfg domain.IndexSettings) (driven.PassageIndex, driven.RunStore, error) {
	switch cfg.Backend {
	case domain.IndexBackendMemory:
		return memory.NewPassageIndex(), memory.NewRunStore(), nil

	case domain.IndexBackendPgVector:
		store, err := pgvector.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open pgvector index: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, store, nil

	case domain.IndexBackendSQLite, "":
		store, reset, err := sqlite.OpenOrReset(filepath.Join(a.Home, dataDirName))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite index: %w", err)
		}
		if reset {
			logger.Warn("Index database was unreadable and has been recreated")
		}
		a.closers = append(a.closers, store.Close)
		return store.PassageIndex(), store.RunStore(), nil

	default:
		return nil, nil, fmt.Errorf("%w: index backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}

// openArtifacts opens the artifact store for the configured backend.
func (a *App) openArtifacts(ctx context.Context, cfg domain.ArtifactSettings) (driven.ArtifactStore, error) {
	switch cfg.Backend {
	case domain.ArtifactBackendS3:
		store, err := s3.NewStore(ctx, s3.Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 artifacts: %w", err)
		}
		return store, nil

	case domain.ArtifactBackendLocal, "":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(a.Home, runsDirName)
		}
		store, err := local.NewStore(dir)
		if err != nil {
			return nil, fmt.Errorf("open local artifacts: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: artifact backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}

// Close shuts down running jobs and releases every adapter.
func (a *App) Close() error {
	if a.Jobs != nil {
		if err := a.Jobs.Shutdown(context.Background()); err != nil {
			logger.Warn("Job shutdown: %v", err)
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
