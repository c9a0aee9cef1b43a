package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
)

// DefaultDocumentBudgetTokens caps how much of the document is sent
// to the model when annotating one chunk.
const DefaultDocumentBudgetTokens = 6000

// annotatePrompt asks the model to situate a chunk within its parent
// document. The answer is indexed alongside the chunk text so that
// pronouns and dangling references become searchable.
const annotatePrompt = `<document>
%s
</document>

Here is a chunk from the document above:
<chunk>
%s
</chunk>

Write one to three short sentences situating this chunk within the
overall document, so the chunk can be understood on its own. Mention
the document's subject and what this part covers. Answer with only
the situating sentences, nothing else.`

// AnnotationService generates a short situating context for each
// chunk before it is embedded.
type AnnotationService struct {
	llm            driven.LLMService
	documentBudget int
}

// AnnotationOption configures the annotation service.
type AnnotationOption func(*AnnotationService)

// WithDocumentBudget caps the document tokens included in the prompt.
func WithDocumentBudget(tokens int) AnnotationOption {
	return func(s *AnnotationService) {
		if tokens > 0 {
			s.documentBudget = tokens
		}
	}
}

// NewAnnotationService creates a new annotation service.
func NewAnnotationService(llm driven.LLMService, opts ...AnnotationOption) *AnnotationService {
	s := &AnnotationService{
		llm:            llm,
		documentBudget: DefaultDocumentBudgetTokens,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Annotate returns situating context for the chunk. A failed call or
// an empty model response yields *domain.AnnotationError; the caller
// decides whether to retry or index the chunk without context.
func (s *AnnotationService) Annotate(ctx context.Context, doc *domain.Document, chunk *domain.Chunk) (string, error) {
	if s.llm == nil {
		return "", &domain.AnnotationError{ChunkID: chunk.ID, Err: domain.ErrLLMUnavailable}
	}

	prompt := fmt.Sprintf(annotatePrompt, truncateTokens(doc.Content, s.documentBudget), chunk.Content)

	response, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   200,
		Temperature: 0.0,
	})
	if err != nil {
		return "", &domain.AnnotationError{ChunkID: chunk.ID, Err: err}
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return "", &domain.AnnotationError{ChunkID: chunk.ID, Err: errors.New("empty annotation response")}
	}

	return response, nil
}

// truncateTokens cuts s after the given number of whitespace words.
func truncateTokens(s string, budget int) string {
	fields := strings.Fields(s)
	if len(fields) <= budget {
		return s
	}
	return strings.Join(fields[:budget], " ")
}
