package driving

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// IngestStatus summarises a batch ingestion run.
type IngestStatus struct {
	// DocumentsProcessed is how many documents completed.
	DocumentsProcessed int

	// DocumentsFailed is how many documents failed. Failures are
	// isolated per document and never abort the batch.
	DocumentsFailed int

	// ChunksIndexed is the total chunks committed across the batch.
	ChunksIndexed int
}

// IngestOrchestrator runs the contextual ingestion pipeline.
type IngestOrchestrator interface {
	// IngestDir ingests every normalised document under dir.
	IngestDir(ctx context.Context, dir string) (*IngestStatus, error)

	// IngestDocument ingests a single normalised document.
	IngestDocument(ctx context.Context, doc *domain.Document) error

	// Records returns all ingestion records, newest first.
	Records(ctx context.Context) ([]domain.IngestionRecord, error)
}
