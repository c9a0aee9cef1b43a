// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Document and chunk persistence
//   - IngestionStore: Per-document ingestion record persistence
//   - SearchEngine: Full-text keyword search over committed chunks
//   - VectorIndex: Nearest-neighbour search over committed embeddings
//   - EmbeddingService: Maps text to fixed-dimension vectors
//   - LLMService: Generative model calls for annotation and the agents
//   - Normaliser: Converts raw documents into normalised text
//   - PostProcessor: Produces chunks from normalised documents
//
// The generative and embedding services are non-deterministic,
// externally hosted functions. Wrapping them behind narrow typed
// interfaces keeps the orchestration logic testable against
// deterministic stub implementations.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
