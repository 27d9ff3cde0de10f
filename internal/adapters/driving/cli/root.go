// Package cli implements the umlgen command line interface.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/umlgen/internal/app"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// annotationNeedsApp marks commands that need the fully wired application.
const annotationNeedsApp = "umlgen/needs-app"

var (
	homeDir string
	verbose bool
)

// Services used by commands. Tests replace them with mocks; otherwise they
// are filled in from the wired application on first use.
var (
	settingsService   driving.SettingsService
	indexService      driving.IndexService
	generationService driving.GenerationService
	jobService        driving.JobService
	runService        driving.RunService
	metricsHandler    http.Handler
	datasetDir        string

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "umlgen",
	Short: "Generate UML diagrams from software scenarios",
	Long: `umlgen turns a free-text software scenario into PlantUML diagrams.

Reference PDFs are indexed once; each request retrieves related passages,
asks an LLM for labelled diagrams and renders them, repairing any source
the renderer rejects. Every request writes its artifacts to its own folder.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "umlgen home directory (default ~/.umlgen)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// needsApp marks cmd as requiring the wired application.
func needsApp(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationNeedsApp] = "true"
	return cmd
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetOutput(cmd.ErrOrStderr())

	if cmd.Annotations[annotationNeedsApp] != "true" || generationService != nil {
		return nil
	}
	return loadApp(cmd.Context())
}

// loadApp builds the application from the settings under the home directory.
func loadApp(ctx context.Context) error {
	if application != nil {
		return nil
	}

	home, err := app.ResolveHome(homeDir)
	if err != nil {
		return err
	}
	settings, err := app.NewSettingsService(home)
	if err != nil {
		return err
	}

	a, err := app.Build(ctx, home, settings)
	if err != nil {
		return fmt.Errorf("%w\nRun 'umlgen settings show' to review the configuration", err)
	}

	application = a
	settingsService = a.Settings
	indexService = a.Index
	generationService = a.Pipeline
	jobService = a.Jobs
	runService = a.Runs
	metricsHandler = a.Metrics.Handler()
	datasetDir = a.DatasetDir
	return nil
}

// settings returns the settings service, opening the config when no
// application has been loaded.
func settings() (driving.SettingsService, error) {
	if settingsService != nil {
		return settingsService, nil
	}
	home, err := app.ResolveHome(homeDir)
	if err != nil {
		return nil, err
	}
	svc, err := app.NewSettingsService(home)
	if err != nil {
		return nil, err
	}
	settingsService = svc
	return svc, nil
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeApp()

	return rootCmd.ExecuteContext(ctx)
}

func closeApp() {
	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		logger.Warn("Shutdown: %v", err)
	}
	application = nil
}
