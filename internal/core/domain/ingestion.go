package domain

import "time"

// IngestionStatus is the lifecycle state of a document in the ingestion pipeline.
type IngestionStatus string

const (
	// IngestionPending means the document has been registered but not started.
	IngestionPending IngestionStatus = "pending"

	// IngestionProcessing means the pipeline is currently working on the document.
	IngestionProcessing IngestionStatus = "processing"

	// IngestionCompleted means all chunks were committed.
	IngestionCompleted IngestionStatus = "completed"

	// IngestionFailed means the document could not be ingested; LastError explains why.
	IngestionFailed IngestionStatus = "failed"
)

// IngestionRecord tracks per-document ingestion status.
// It is mutated only by the ingestion pipeline; UpdatedAt is monotonic
// non-decreasing across status transitions.
type IngestionRecord struct {
	// DocumentID identifies the document being ingested.
	DocumentID string

	// Name is the human-readable document name.
	Name string

	// Path is the normalised source path.
	Path string

	// Status is the current lifecycle state.
	Status IngestionStatus

	// ChunkCount is the number of chunks committed for the document.
	ChunkCount int

	// LastError contains the most recent failure message, if any.
	LastError string

	// StartedAt is when ingestion of this document first began.
	StartedAt time.Time

	// UpdatedAt is when the record was last touched.
	UpdatedAt time.Time
}
