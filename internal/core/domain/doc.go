// Package domain defines the core business entities for CorpusQA.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A normalised source document
//   - Chunk: A retrieval unit within a document
//   - ContextualChunk: A chunk enriched with generated context and its embedding
//   - IngestionRecord: Per-document ingestion status
//   - RetrievalCandidate: A scored chunk produced by the hybrid retriever
//   - FindingsReport: Claims with supporting chunk references from the research agent
//   - AnswerResult: The final grounded answer with cited sources
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
