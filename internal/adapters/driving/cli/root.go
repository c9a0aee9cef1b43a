// Package cli implements the corpusqa command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/corpora-labs/corpusqa/internal/logger"
)

var (
	version = "dev"
	verbose bool
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "corpusqa",
	Short: "Grounded question answering over a local document corpus",
	Long: `CorpusQA converts and ingests local documents into a hybrid search
index, then answers questions over them with a research and synthesis
agent pipeline. Every answer cites the chunks it was grounded on.

The same pipeline is available over an OpenAI-compatible HTTP API via
the serve command.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a TOML config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion records the build version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}
