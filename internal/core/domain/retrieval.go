package domain

// RetrievalCandidate is a chunk scored by the hybrid retriever.
// Candidates are ephemeral: produced per query and never persisted.
type RetrievalCandidate struct {
	// ChunkID identifies the matched chunk.
	ChunkID string

	// DocumentID identifies the parent document.
	DocumentID string

	// DocumentName is the human-readable parent document name.
	DocumentName string

	// Position is the chunk's ordinal position within the document.
	Position int

	// Content is the chunk text.
	Content string

	// Context is the generated context the chunk was indexed with.
	Context string

	// VectorScore is the cosine similarity from vector search (0 when absent).
	VectorScore float64

	// VectorRank is the 1-based rank in the vector result list (0 when absent).
	VectorRank int

	// LexicalScore is the keyword relevance score (0 when absent).
	LexicalScore float64

	// LexicalRank is the 1-based rank in the lexical result list (0 when absent).
	LexicalRank int

	// FusedScore is the reciprocal-rank fusion score across both lists.
	FusedScore float64
}
