package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docuchat/ragengine/internal/engine"
)

// NewQueryCmd constructs the `ragengine query` command: a one-shot pipeline
// that ingests the given documents into a throwaway corpus, answers a single
// question against them, and prints the assembled context to stdout.
func NewQueryCmd() *cobra.Command {
	var files []string
	var maxResults int

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ingest documents and answer a single question against them",
		Long: `Ingest one or more plain-text documents into an in-memory corpus and
retrieve the passages most relevant to the question.

The command prints the assembled context, the source documents it came from,
and a confidence score. Nothing is persisted; every invocation starts from an
empty corpus.

Examples:
  ragengine query --file docs/returns.txt "what is the return window?"
  ragengine query -f a.txt -f b.txt --max-results 3 "how do refunds work?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if len(files) == 0 {
				return fmt.Errorf("query: at least one --file is required")
			}

			eng, _, cleanup, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("query: failed to initialise engine: %w", err)
			}
			defer cleanup()

			ingestFiles := make([]engine.IngestFile, 0, len(files))
			for _, path := range files {
				data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's own CLI flag
				if err != nil {
					return fmt.Errorf("query: failed to read %s: %w", path, err)
				}
				ingestFiles = append(ingestFiles, engine.IngestFile{
					Filename: filepath.Base(path),
					Text:     string(data),
				})
			}

			ingested, err := eng.Ingest(ctx, "", ingestFiles)
			if err != nil {
				return fmt.Errorf("query: ingestion failed: %w", err)
			}
			for _, f := range ingested.Failures {
				fmt.Fprintf(os.Stderr, "warning: skipped %s: %v\n", f.Filename, f.Err)
			}
			if ingested.DocumentsProcessed == 0 {
				return fmt.Errorf("query: no documents could be ingested")
			}

			question := strings.Join(args, " ")
			result, err := eng.Query(ctx, ingested.CorpusID, question, maxResults)
			if err != nil {
				return fmt.Errorf("query: retrieval failed: %w", err)
			}

			if result.Context == "" {
				fmt.Println("No relevant passages found.")
			} else {
				fmt.Println(result.Context)
			}
			fmt.Println()
			if len(result.Sources) > 0 {
				fmt.Printf("Sources: %s\n", strings.Join(result.Sources, ", "))
			}
			fmt.Printf("Confidence: %d%%\n", result.Confidence)

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Document to ingest (repeatable)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum passages to retrieve (0 = default)")

	return cmd
}
