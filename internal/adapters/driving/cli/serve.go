package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corpora-labs/corpusqa/internal/adapters/driving/api"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpenAI-compatible API server",
	Long: `Serves the question-answering pipeline over an OpenAI-compatible
HTTP API. Existing chat clients can point at it by setting their base
URL; the model name selects the orchestration mode.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override the configured port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := initServices(); err != nil {
		return err
	}

	server := api.NewServer(answerService,
		api.WithHealthTargets(appStore, embeddingService, llmService))

	port := appConfig.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Serving API on %s", addr)
	return server.Run(ctx, addr)
}
