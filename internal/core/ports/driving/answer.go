package driving

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// AnswerService answers natural-language questions over the corpus.
type AnswerService interface {
	// Answer runs the orchestration pipeline for a query.
	// History carries prior conversation turns; it may be empty.
	Answer(ctx context.Context, query string, history []domain.AnswerResult, mode domain.AnswerMode) (*domain.AnswerResult, error)
}
