package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

var (
	indexQueryK    int
	indexQueryJSON bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the reference index",
	Long: `Build and inspect the vector index of reference PDFs.

The index is built from every PDF in the dataset folder. It is reused across
runs and rebuilt automatically when it is corrupt or was built with a
different embedding model.`,
}

var indexBuildCmd = needsApp(&cobra.Command{
	Use:   "build",
	Short: "Rebuild the index from the dataset folder",
	Args:  cobra.NoArgs,
	RunE:  runIndexBuild,
})

var indexStatusCmd = needsApp(&cobra.Command{
	Use:   "status",
	Short: "Show index metadata",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
})

var indexQueryCmd = needsApp(&cobra.Command{
	Use:   "query [text]",
	Short: "Show the passages retrieved for a text",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexQuery,
})

func init() {
	indexQueryCmd.Flags().IntVarP(&indexQueryK, "top-k", "k", 0, "number of passages (default from settings)")
	indexQueryCmd.Flags().BoolVar(&indexQueryJSON, "json", false, "output passages as JSON")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexQueryCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexBuild(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	start := time.Now()
	info, err := indexService.Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	cmd.Printf("Indexed %d passages from %d documents in %s\n",
		info.PassageCount, info.DocumentCount, time.Since(start).Round(time.Millisecond))
	return nil
}

func runIndexStatus(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	info, err := indexService.Info(cmd.Context())
	if errors.Is(err, domain.ErrNotFound) {
		cmd.Println("No index has been built yet. Run 'umlgen index build'.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	cmd.Println("Index")
	cmd.Println("=====")
	cmd.Printf("  Embedding model: %s\n", info.EmbeddingModel)
	cmd.Printf("  Dimensions: %d\n", info.Dimensions)
	cmd.Printf("  Documents: %d\n", info.DocumentCount)
	cmd.Printf("  Passages: %d\n", info.PassageCount)
	if !info.BuiltAt.IsZero() {
		cmd.Printf("  Built: %s\n", info.BuiltAt.Local().Format(time.RFC3339))
	}
	if info.IsEmpty() {
		cmd.Println("  The index is empty; add PDFs to the dataset folder and rebuild.")
	}
	return nil
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	results, err := indexService.Query(cmd.Context(), args[0], indexQueryK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if indexQueryJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No passages found.")
		return nil
	}

	for i, r := range results {
		cmd.Printf("  [%d] %s #%d (%.2f)\n", i+1, r.Passage.Source, r.Passage.Position, r.Similarity)
		cmd.Printf("      %s\n", snippet(r.Passage.Content, 160))
		cmd.Println()
	}
	return nil
}

// snippet returns the first max runes of text on one line.
func snippet(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
