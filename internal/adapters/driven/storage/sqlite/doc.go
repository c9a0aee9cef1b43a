// Package sqlite provides a unified SQLite-based implementation of the
// storage port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation
// that requires no CGO, enabling easy cross-compilation. It implements
// multiple store interfaces through a single database connection:
//
//   - DocumentStore: document and contextual chunk persistence
//   - IngestionStore: per-document ingestion records
//   - SearchEngine: FTS5 BM25 keyword search over embedded chunk text
//   - VectorIndex: exact cosine scan over stored embeddings
//
// Keeping all four behind one database is what guarantees the lexical
// and vector search paths read the same committed snapshot: a document
// and its chunks, FTS rows and ingestion record commit in a single
// transaction.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in
// the migrations/ directory.
//
// # Data Location
//
// By default, the database is stored at ~/.corpusqa/data/corpus.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
