package driven

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// PostProcessor produces chunks from a normalised document.
// Implementations must be deterministic: the same document and
// configuration always yield byte-identical chunks, which is what
// makes re-ingestion idempotent.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a document and returns its chunks in order.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
