package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestDirFlag string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest normalised documents into the index",
	Long: `Runs the contextual ingestion pipeline over every normalised
document in a directory: chunking, context annotation, embedding and
indexing. Ingestion is idempotent; re-running it on the same directory
replaces documents in place.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDirFlag, "dir", "", "normalised document directory")
	_ = ingestCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	if err := initServices(); err != nil {
		return err
	}

	status, err := ingestService.IngestDir(cmd.Context(), ingestDirFlag)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Ingested %d document(s) (%d chunks), %d failed\n",
		status.DocumentsProcessed, status.ChunksIndexed, status.DocumentsFailed)
	if status.DocumentsFailed > 0 {
		cmd.Println("Run 'corpusqa status' for per-document details.")
	}
	return nil
}
