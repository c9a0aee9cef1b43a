package driven

import "context"

// SearchEngine provides full-text keyword search over committed chunks.
// Backed by SQLite FTS5 BM25 ranking.
type SearchEngine interface {
	// Search performs a keyword search and returns matching chunk IDs
	// with scores, best first. Ordering is deterministic: ties break by
	// lower chunk position, then document ID, then chunk ID.
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// SearchHit represents a keyword search result.
type SearchHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the relevance score (BM25).
	Score float64
}
