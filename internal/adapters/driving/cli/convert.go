package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	convertIn  string
	convertOut string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Normalise raw documents for ingestion",
	Long: `Walks a raw document directory and writes normalised plain text
plus metadata sidecars into the output directory. Supported formats
are plain text and Markdown; other files are skipped. Re-running a
conversion overwrites with identical output.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertIn, "in", "", "raw document directory")
	convertCmd.Flags().StringVar(&convertOut, "out", "", "normalised output directory")
	_ = convertCmd.MarkFlagRequired("in")
	_ = convertCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, _ []string) error {
	if err := initServices(); err != nil {
		return err
	}

	status, err := convertService.Convert(cmd.Context(), convertIn, convertOut)
	if err != nil {
		return fmt.Errorf("convert failed: %w", err)
	}

	cmd.Printf("Converted %d file(s), skipped %d, failed %d\n",
		status.FilesConverted, status.FilesSkipped, status.FilesFailed)
	return nil
}
