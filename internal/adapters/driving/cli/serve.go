package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/custodia-labs/umlgen/internal/adapters/driving/http"
	"github.com/custodia-labs/umlgen/internal/adapters/driving/watcher"
	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// jobShutdownTimeout bounds waiting for running jobs after the server stops.
const jobShutdownTimeout = 30 * time.Second

var (
	serveAddr      string
	serveWatch     bool
	serveLogFormat string
)

var serveCmd = needsApp(&cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the REST API for asynchronous diagram generation.

Endpoints:
  POST   /v1/generations                          submit a scenario (202 + job)
  GET    /v1/generations/:id                      job status, steps and result
  DELETE /v1/generations/:id                      cancel a job
  GET    /v1/runs                                 recent runs
  GET    /v1/runs/:requestId/artifacts            artifact listing
  GET    /v1/runs/:requestId/artifacts/:name      artifact content
  GET    /v1/index, POST /v1/index/rebuild        index metadata and rebuild
  GET    /healthz, GET /metrics                   health and Prometheus metrics

With --watch the index is rebuilt whenever PDFs in the dataset folder change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
})

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8080", "listen address")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "rebuild the index when the dataset folder changes")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "log format: json or console")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if jobService == nil {
		return errors.New("job service not configured")
	}
	logger.SetFormat(serveLogFormat)

	ctx := cmd.Context()
	if indexService != nil {
		action, err := indexService.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("prepare index: %w", err)
		}
		logger.Info("Index %s", action)
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		Jobs:    jobService,
		Runs:    runService,
		Index:   indexService,
		Metrics: metricsHandler,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if serveWatch {
		if err := startWatcher(ctx); err != nil {
			return err
		}
	}

	cmd.Printf("HTTP API listening on %s\n", serveAddr)
	serveErr := server.Run(ctx, serveAddr)

	shutdownCtx, stop := context.WithTimeout(context.Background(), jobShutdownTimeout)
	defer stop()
	if err := jobService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Jobs did not stop in time: %v", err)
	}
	return serveErr
}

// startWatcher rebuilds the index in the background when dataset PDFs change.
func startWatcher(ctx context.Context) error {
	if indexService == nil || datasetDir == "" {
		return errors.New("dataset watching needs the index service")
	}

	w, err := watcher.New(datasetDir, indexService, watcher.WithOnRebuild(func(info *domain.IndexInfo, err error) {
		if err == nil {
			logger.Info("Dataset changed, index rebuilt with %d passages", info.PassageCount)
		}
	}))
	if err != nil {
		return fmt.Errorf("watch dataset: %w", err)
	}

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Dataset watcher stopped: %v", err)
		}
	}()
	return nil
}
