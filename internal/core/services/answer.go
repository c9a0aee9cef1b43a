package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

const condensePrompt = `Rewrite the final question so it stands alone without the
conversation. Keep it short. Respond with the rewritten question only.

Conversation:
%s

Final question: %s`

// AnswerService orchestrates the answer pipeline. Full mode runs the
// research agent and then synthesis; simple mode converts one
// retrieval pass directly into a findings report and reuses the same
// synthesis path, so citations stay mandatory in both modes.
type AnswerService struct {
	retriever driving.Retriever
	research  *ResearchService
	synthesis *SynthesisService
	llm       driven.LLMService

	topK int
}

// AnswerOption configures the answer service.
type AnswerOption func(*AnswerService)

// WithAnswerTopK sets the simple-mode retrieval breadth.
func WithAnswerTopK(k int) AnswerOption {
	return func(s *AnswerService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewAnswerService creates a new answer orchestrator.
func NewAnswerService(
	retriever driving.Retriever,
	research *ResearchService,
	synthesis *SynthesisService,
	llm driven.LLMService,
	opts ...AnswerOption,
) *AnswerService {
	s := &AnswerService{
		retriever: retriever,
		research:  research,
		synthesis: synthesis,
		llm:       llm,
		topK:      5,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Answer runs the orchestration pipeline for one query.
func (s *AnswerService) Answer(ctx context.Context, query string, history []domain.AnswerResult, mode domain.AnswerMode) (*domain.AnswerResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}
	if mode == "" {
		mode = domain.ModeFull
	}

	logger.Section("Answer")
	logger.Info("Answering in %s mode: %q", mode, query)

	query = s.condense(ctx, query, history)

	var report *domain.FindingsReport
	var err error

	switch mode {
	case domain.ModeSimple:
		report, err = s.simpleReport(ctx, query)
	default:
		report, err = s.research.Research(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	result, err := s.synthesis.Synthesize(ctx, query, report)
	if err != nil {
		return nil, err
	}

	result.Mode = mode
	logger.Info("Answer: %d sources, grounded=%t", len(result.Sources), result.Grounded)
	return result, nil
}

// simpleReport converts a single retrieval pass into a findings
// report. Rounds stays zero: no research ran.
func (s *AnswerService) simpleReport(ctx context.Context, query string) (*domain.FindingsReport, error) {
	candidates, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		return nil, err
	}

	return &domain.FindingsReport{
		Query:    query,
		Findings: candidatesToFindings(candidates),
	}, nil
}

// condense folds prior turns into a standalone question. Any model
// failure leaves the query as asked.
func (s *AnswerService) condense(ctx context.Context, query string, history []domain.AnswerResult) string {
	if len(history) == 0 || s.llm == nil {
		return query
	}

	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "assistant: %s\n", turn.Answer)
	}

	response, err := s.llm.Generate(ctx, fmt.Sprintf(condensePrompt, b.String(), query), driven.GenerateOptions{
		MaxTokens:   150,
		Temperature: 0.0,
	})
	if err != nil {
		logger.Warn("Answer: history condensation failed, using raw question: %v", err)
		return query
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return query
	}
	logger.Debug("Answer: condensed query: %q", response)
	return response
}
