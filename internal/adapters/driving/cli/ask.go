package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

var askSimple bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over the ingested corpus",
	Long: `Answers a question using the research and synthesis pipeline,
printing the answer and its cited sources. Without a question argument
it starts an interactive session where each answer feeds the history
of the next question.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSimple, "simple", false, "answer from a single retrieval pass")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	mode := domain.ModeFull
	if askSimple {
		mode = domain.ModeSimple
	}

	if len(args) > 0 {
		_, err := askOnce(cmd, strings.Join(args, " "), nil, mode)
		return err
	}
	return askLoop(cmd, mode)
}

// askLoop is the interactive session. Answered turns accumulate as
// history so follow-up questions are condensed against them.
func askLoop(cmd *cobra.Command, mode domain.AnswerMode) error {
	cmd.Println("Ask questions about your corpus. Type 'exit' to quit.")

	var history []domain.AnswerResult
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("\n? ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}

		result, err := askOnce(cmd, query, history, mode)
		if err != nil {
			cmd.PrintErrf("Error: %v\n", err)
			continue
		}
		if result != nil {
			history = append(history, *result)
		}
	}
}

func askOnce(cmd *cobra.Command, query string, history []domain.AnswerResult, mode domain.AnswerMode) (*domain.AnswerResult, error) {
	result, err := answerService.Answer(cmd.Context(), query, history, mode)
	if err != nil {
		var grounding *domain.GroundingViolation
		if errors.As(err, &grounding) {
			// The answer was suppressed, not lost to a fault.
			cmd.Println("Unable to answer: the generated answer could not be verified against the retrieved documents.")
			return nil, nil
		}
		return nil, fmt.Errorf("answer failed: %w", err)
	}

	cmd.Println(result.Answer)
	if len(result.Sources) > 0 {
		cmd.Println("\nSources:")
		for i, src := range result.Sources {
			cmd.Printf("  [%d] %s (chunk %d)\n", i+1, src.DocumentName, src.Position)
		}
	}
	return result, nil
}
