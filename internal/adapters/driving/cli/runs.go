package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsLimit    int
	runsShowJSON bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past generation runs",
}

var runsListCmd = needsApp(&cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
})

var runsShowCmd = needsApp(&cobra.Command{
	Use:   "show [request-id]",
	Short: "Show a run and its artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
})

func init() {
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
	runsShowCmd.Flags().BoolVar(&runsShowJSON, "json", false, "output the run as JSON")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	if runService == nil {
		return errors.New("run service not configured")
	}

	runs, err := runService.List(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		cmd.Println("No runs recorded yet.")
		return nil
	}

	cmd.Printf("%-36s  %-10s  %-9s  %-8s  %s\n", "REQUEST", "STATUS", "MODE", "DIAGRAMS", "STARTED")
	for i := range runs {
		diagrams := "-"
		if r := runs[i].Result; r != nil {
			diagrams = fmt.Sprintf("%d/%d", r.Rendered(), len(r.Diagrams))
		}
		cmd.Printf("%-36s  %-10s  %-9s  %-8s  %s\n",
			runs[i].RequestID,
			runs[i].Status,
			runs[i].Mode,
			diagrams,
			runs[i].CreatedAt.Local().Format(time.DateTime),
		)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	if runService == nil {
		return errors.New("run service not configured")
	}
	requestID := args[0]

	run, err := runService.Get(cmd.Context(), requestID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	artifacts, err := runService.Artifacts(cmd.Context(), requestID)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	if runsShowJSON {
		data, err := json.MarshalIndent(map[string]any{
			"run":       run,
			"artifacts": artifacts,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Request: %s\n", run.RequestID)
	cmd.Printf("Status: %s\n", run.Status)
	cmd.Printf("Mode: %s\n", run.Mode)
	cmd.Printf("Started: %s\n", run.CreatedAt.Local().Format(time.DateTime))
	cmd.Printf("Finished: %s\n", run.FinishedAt.Local().Format(time.DateTime))
	cmd.Printf("Scenario: %s\n", snippet(run.Scenario, 120))

	if run.Result != nil {
		if run.Result.Error != "" {
			cmd.Printf("Error: %s\n", run.Result.Error)
		}
		if len(run.Result.Diagrams) > 0 {
			cmd.Println()
			cmd.Println("Diagrams:")
			for _, d := range run.Result.Diagrams {
				cmd.Printf("  %-28s %-12s %d attempts\n", d.Title, d.Status, d.Attempts)
			}
		}
	}

	cmd.Println()
	cmd.Println("Artifacts:")
	for _, a := range artifacts {
		cmd.Printf("  %-32s %-9s %8d  %s\n", a.Name, a.Kind, a.Size, a.Location)
	}
	return nil
}
