package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Document represents a normalised source document.
// It is immutable once ingested; re-ingestion supersedes it via an
// idempotent upsert keyed on ID rather than mutating it in place.
type Document struct {
	// ID is the unique identifier, derived deterministically from the path.
	ID string

	// Name is the human-readable document name (usually the file name).
	Name string

	// Path is the original location of the document.
	Path string

	// Content is the full normalised text before chunking.
	Content string

	// Format records the original format (txt, md, ...).
	Format string

	// Metadata contains arbitrary key-value pairs from normalisation.
	Metadata map[string]any

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document was last re-ingested.
	UpdatedAt time.Time
}

// Chunk represents a retrieval unit within a document.
// Chunks from one document are ordered by Position and adjacent chunks
// share a configured overlap window.
type Chunk struct {
	// ID is the unique identifier, derived from (DocumentID, Position).
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Position is the ordinal position within the document.
	Position int

	// Content is the text content of this chunk.
	Content string

	// TokenCount is the approximate token count of Content.
	TokenCount int

	// PrevID and NextID identify the overlap-adjacent neighbours, if any.
	PrevID string
	NextID string
}

// ContextualChunk is a Chunk enriched with a generated context string
// and the embedding computed over the combined text.
//
// Invariant: Embedding is always computed from EmbeddedText, and
// EmbeddedText is always derived from Context and Content via
// EmbedText. The three fields are persisted together and never diverge.
type ContextualChunk struct {
	Chunk

	// Context is the generated 1-3 sentence situating statement.
	// Empty when annotation failed and the chunk was indexed unannotated.
	Context string

	// EmbeddedText is the exact text the embedding was computed from.
	EmbeddedText string

	// Embedding is the fixed-dimension vector for EmbeddedText.
	Embedding []float32
}

// EmbedText returns the canonical text to embed for a chunk: the
// generated context (when present) prepended to the chunk content.
// The order is fixed; changing it would invalidate every stored vector.
func EmbedText(context, content string) string {
	if context == "" {
		return content
	}
	return context + "\n\n" + content
}

// DocumentID derives the stable document identifier for a source path.
// The same path always yields the same ID, which is what makes
// re-ingestion idempotent.
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:32]
}

// ChunkID derives the stable chunk identifier for a document and position.
func ChunkID(documentID string, position int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", documentID, position))
	return hex.EncodeToString(sum[:])[:32]
}
