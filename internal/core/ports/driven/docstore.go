package driven

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// DocumentStore persists documents and contextual chunks.
// Backed by SQLite.
type DocumentStore interface {
	// UpsertDocument stores a document together with all its contextual
	// chunks and the matching ingestion record in a single transaction.
	// The commit is atomic: a concurrent query never observes a
	// half-indexed document. Idempotent on document ID and on
	// (document ID, position) for chunks.
	UpsertDocument(ctx context.Context, doc *domain.Document, chunks []domain.ContextualChunk, record *domain.IngestionRecord) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all contextual chunks for a document, ordered
	// by position.
	GetChunks(ctx context.Context, documentID string) ([]domain.ContextualChunk, error)

	// GetChunk retrieves a specific contextual chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.ContextualChunk, error)

	// ChunkCount returns the number of committed chunks for a document.
	ChunkCount(ctx context.Context, documentID string) (int, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// Ping validates the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
