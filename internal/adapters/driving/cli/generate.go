package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

var (
	generateFile          string
	generateExpertise     string
	generateExpertiseFile string
	generateMode          string
	generateJSON          bool
)

var generateCmd = needsApp(&cobra.Command{
	Use:   "generate [scenario]",
	Short: "Generate diagrams for a scenario",
	Long: `Generate PlantUML diagrams for a software scenario and render them.

The scenario is taken from the argument or from --file. Expertise notes are
optional; when absent the prompt says "No information provided.".

Modes:
  single     - one LLM call produces the diagrams (default)
  two-stage  - an analysis call first, then diagrams built from it

Examples:
  umlgen generate "Members borrow and return books at a library"
  umlgen generate --file scenario.txt --expertise-file notes.txt --mode two-stage`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
})

func init() {
	generateCmd.Flags().StringVarP(&generateFile, "file", "f", "", "read the scenario from a file")
	generateCmd.Flags().StringVarP(&generateExpertise, "expertise", "e", "", "domain notes for the prompt")
	generateCmd.Flags().StringVar(&generateExpertiseFile, "expertise-file", "", "read expertise notes from a file")
	generateCmd.Flags().StringVarP(&generateMode, "mode", "m", "", "pipeline mode: single or two-stage (default from settings)")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generationService == nil {
		return errors.New("generation service not configured")
	}

	req, err := generateRequest(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if indexService != nil {
		action, err := indexService.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("prepare index: %w", err)
		}
		if !generateJSON {
			cmd.Printf("Index %s\n", action)
		}
	}

	var progress domain.ProgressFunc
	if !generateJSON {
		progress = func(p domain.Progress) { printProgress(cmd, p) }
	}

	result, err := generationService.Generate(ctx, req, progress)
	if result == nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	if generateJSON {
		data, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal result: %w", merr)
		}
		cmd.Println(string(data))
	} else {
		printResult(cmd, result)
	}

	if err != nil {
		return fmt.Errorf("request %s %s: %w", result.RequestID, result.Status, err)
	}
	if result.Status == domain.RunFailed {
		return fmt.Errorf("request %s failed: no diagram rendered", result.RequestID)
	}
	return nil
}

// generateRequest builds the request from arguments and flags.
func generateRequest(args []string) (domain.ScenarioRequest, error) {
	var req domain.ScenarioRequest

	switch {
	case len(args) == 1 && generateFile != "":
		return req, errors.New("give the scenario as an argument or with --file, not both")
	case len(args) == 1:
		req.Scenario = args[0]
	case generateFile != "":
		data, err := os.ReadFile(generateFile)
		if err != nil {
			return req, fmt.Errorf("read scenario: %w", err)
		}
		req.Scenario = string(data)
	default:
		return req, errors.New("a scenario is required (argument or --file)")
	}

	req.Expertise = generateExpertise
	if generateExpertiseFile != "" {
		data, err := os.ReadFile(generateExpertiseFile)
		if err != nil {
			return req, fmt.Errorf("read expertise: %w", err)
		}
		req.Expertise = strings.TrimSpace(strings.Join([]string{req.Expertise, string(data)}, "\n"))
	}

	req.Mode = domain.PipelineMode(generateMode)
	return req, nil
}

func printProgress(cmd *cobra.Command, p domain.Progress) {
	if p.Status == domain.StepInProgress {
		return
	}
	step := p.Step
	if p.Diagram != "" {
		step += ":" + p.Diagram
	}
	if p.Description != "" {
		cmd.Printf("  [%s] %s: %s\n", step, p.Status, p.Description)
		return
	}
	cmd.Printf("  [%s] %s\n", step, p.Status)
}

func printResult(cmd *cobra.Command, result *domain.RunResult) {
	cmd.Println()
	cmd.Printf("Request %s: %s (%s mode)\n", result.RequestID, result.Status, result.Mode)
	if result.Error != "" {
		cmd.Printf("  Error: %s\n", result.Error)
	}
	if result.ExtractionEmpty {
		cmd.Println("  The response contained no labelled diagrams; see llm_response.txt.")
		return
	}
	if len(result.Diagrams) == 0 {
		return
	}

	cmd.Println()
	cmd.Printf("  %-28s %-12s %-9s %s\n", "DIAGRAM", "STATUS", "ATTEMPTS", "IMAGE")
	for _, d := range result.Diagrams {
		image := d.ImageArtifact
		if image == "" {
			image = "-"
		}
		cmd.Printf("  %-28s %-12s %-9d %s\n", d.Title, d.Status, d.Attempts, image)
		if d.Error != "" {
			cmd.Printf("      %s\n", d.Error)
		}
	}
	cmd.Printf("\n%d of %d diagrams rendered. Run 'umlgen runs show %s' for artifacts.\n",
		result.Rendered(), len(result.Diagrams), result.RequestID)
}
