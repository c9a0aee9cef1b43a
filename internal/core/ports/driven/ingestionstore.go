package driven

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// IngestionStore persists per-document ingestion records.
// The record table is the only durable state outside the chunk and
// embedding rows; completed records are written transactionally with
// the corresponding chunk upsert (see DocumentStore.UpsertDocument).
type IngestionStore interface {
	// SaveRecord stores or updates an ingestion record. UpdatedAt must
	// never move backwards.
	SaveRecord(ctx context.Context, record *domain.IngestionRecord) error

	// GetRecord retrieves the record for a document.
	GetRecord(ctx context.Context, documentID string) (*domain.IngestionRecord, error)

	// ListRecords returns all ingestion records, newest first.
	ListRecords(ctx context.Context) ([]domain.IngestionRecord, error)
}
