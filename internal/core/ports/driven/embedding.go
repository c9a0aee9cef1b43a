package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// It is a pure function over text: the same input yields the same
// vector for a given model. No caching beyond what the store persists.
//
// Implementations return *domain.EmbeddingError on dimension mismatch
// or service failure. Ingestion retries at chunk level; retrieval
// retries at query level under a strict timeout.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
