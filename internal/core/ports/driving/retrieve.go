package driving

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// Retriever selects relevant chunks for a query.
type Retriever interface {
	// Retrieve returns the top-k fused candidates for the query,
	// best first.
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalCandidate, error)
}
