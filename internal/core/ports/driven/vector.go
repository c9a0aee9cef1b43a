package driven

import "context"

// VectorIndex provides nearest-neighbour search over committed
// embeddings. The index and the SearchEngine operate over the same
// committed snapshot of chunks: a chunk visible to one is visible to
// the other.
type VectorIndex interface {
	// Search finds the k nearest neighbours to the query vector by
	// cosine similarity. Ordering is deterministic: ties break by lower
	// chunk position, then document ID, then chunk ID.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score.
	Similarity float64
}
