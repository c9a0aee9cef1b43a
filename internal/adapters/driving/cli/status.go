package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-document ingestion status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if err := initServices(); err != nil {
		return err
	}

	records, err := ingestService.Records(cmd.Context())
	if err != nil {
		return fmt.Errorf("load ingestion records: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("No documents ingested yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCHUNKS\tNAME\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			r.Status, r.ChunkCount, r.Name, r.UpdatedAt.Format("2006-01-02 15:04:05"))
		if r.LastError != "" {
			fmt.Fprintf(w, "\t\t  %s\t\n", r.LastError)
		}
	}
	return w.Flush()
}
