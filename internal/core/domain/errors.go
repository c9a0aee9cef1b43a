package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the generation service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrStoreUnavailable indicates the vector store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// TransientServiceError wraps a retryable upstream failure (timeout,
// rate limit, temporary unavailability). Call sites that issue the
// request are responsible for retrying with bounded backoff.
type TransientServiceError struct {
	// Service names the upstream service ("embedding", "generation").
	Service string
	Err     error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("transient %s service error: %v", e.Service, e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// AnnotationError indicates context annotation failed for one chunk.
// Annotation failures are isolated at chunk level: the chunk is still
// indexed, unannotated, after retries are exhausted.
type AnnotationError struct {
	ChunkID string
	Err     error
}

func (e *AnnotationError) Error() string {
	return fmt.Sprintf("annotate chunk %s: %v", e.ChunkID, e.Err)
}

func (e *AnnotationError) Unwrap() error { return e.Err }

// EmbeddingError indicates embedding generation failed or returned a
// vector of the wrong dimension.
type EmbeddingError struct {
	// Want and Got carry the expected and actual dimensions for a
	// mismatch; both are zero for transport failures.
	Want int
	Got  int
	Err  error
}

func (e *EmbeddingError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// RetrievalError indicates the retrieval path failed as a whole.
// The orchestrator fails the query request rather than guessing.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GroundingViolation indicates the synthesis output cited a chunk that
// is not present in the findings report, or cited nothing at all. The
// response must be suppressed, never returned ungrounded.
type GroundingViolation struct {
	// ChunkID is the offending citation; empty when the answer carried
	// no citations.
	ChunkID string
}

func (e *GroundingViolation) Error() string {
	if e.ChunkID == "" {
		return "answer contains no citations"
	}
	return fmt.Sprintf("answer cites chunk %s outside the findings report", e.ChunkID)
}

// IngestionDocumentError indicates one document failed to ingest.
// It is recorded on the document's IngestionRecord and does not abort
// the batch.
type IngestionDocumentError struct {
	DocumentID string
	Err        error
}

func (e *IngestionDocumentError) Error() string {
	return fmt.Sprintf("ingest document %s: %v", e.DocumentID, e.Err)
}

func (e *IngestionDocumentError) Unwrap() error { return e.Err }
