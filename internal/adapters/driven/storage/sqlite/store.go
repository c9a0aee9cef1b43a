package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/corpora-labs/corpusqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// Store is a unified SQLite-based storage that provides document,
// ingestion, lexical and vector access through wrapper types over one
// database. Because everything lives in one database and a document
// commits in one transaction, the lexical index and the vector scan
// always read the same committed snapshot.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.corpusqa/data/corpus.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".corpusqa", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "corpus.db")

	// WAL mode keeps the query path readable during ingestion commits.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// IngestionStore returns an IngestionStore interface backed by this store.
func (s *Store) IngestionStore() driven.IngestionStore {
	return &ingestionStore{store: s}
}

// SearchEngine returns a SearchEngine interface backed by this store.
func (s *Store) SearchEngine() driven.SearchEngine {
	return &searchEngine{store: s}
}

// VectorIndex returns a VectorIndex interface backed by this store.
func (s *Store) VectorIndex() driven.VectorIndex {
	return &vectorIndex{store: s}
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== DocumentStore ====================

// Ensure documentStore implements the interface.
var _ driven.DocumentStore = (*documentStore)(nil)

type documentStore struct {
	store *Store
}

// UpsertDocument stores the document, all its contextual chunks and
// the ingestion record in a single transaction. Chunks of a previous
// version that fall outside the new chunk set are removed in the same
// transaction, so re-ingestion never leaves stale rows behind.
func (s *documentStore) UpsertDocument(ctx context.Context, doc *domain.Document, chunks []domain.ContextualChunk, record *domain.IngestionRecord) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling document metadata: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, path, content, format, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			content = excluded.content,
			format = excluded.format,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Name, doc.Path, doc.Content, doc.Format,
		string(metadataJSON), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	keep := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		keep = append(keep, chunk.ID)
	}
	if err := deleteStaleChunks(ctx, tx, doc.ID, keep); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, content, token_count,
			prev_id, next_id, context, embedded_text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			position = excluded.position,
			content = excluded.content,
			token_count = excluded.token_count,
			prev_id = excluded.prev_id,
			next_id = excluded.next_id,
			context = excluded.context,
			embedded_text = excluded.embedded_text,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingBlob := float32SliceToBytes(chunk.Embedding)
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Position,
			chunk.Content, chunk.TokenCount, chunk.PrevID, chunk.NextID,
			chunk.Context, chunk.EmbeddedText, embeddingBlob); err != nil {
			return fmt.Errorf("saving chunk %s: %w", chunk.ID, err)
		}
	}

	if record != nil {
		if err := saveRecordTx(ctx, tx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// deleteStaleChunks removes chunks of the document that are not part
// of the incoming set.
func deleteStaleChunks(ctx context.Context, tx *sql.Tx, documentID string, keep []string) error {
	if len(keep) == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}
		return nil
	}

	placeholders := strings.Repeat("?,", len(keep))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(keep)+1)
	args = append(args, documentID)
	for _, id := range keep {
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM chunks WHERE document_id = ? AND id NOT IN (%s)", placeholders)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, path, content, format, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	return scanDocument(row)
}

// GetChunks retrieves all contextual chunks for a document.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.ContextualChunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, token_count,
			prev_id, next_id, context, embedded_text, embedding
		FROM chunks WHERE document_id = ?
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.ContextualChunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific contextual chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.ContextualChunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, token_count,
			prev_id, next_id, context, embedded_text, embedding
		FROM chunks WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying chunk: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying chunk: %w", err)
		}
		return nil, domain.ErrNotFound
	}
	return scanChunk(rows)
}

// ChunkCount returns the number of committed chunks for a document.
func (s *documentStore) ChunkCount(ctx context.Context, documentID string) (int, error) {
	var count int
	row := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// DeleteDocument removes a document; chunks cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *documentStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes the underlying store.
func (s *documentStore) Close() error {
	return s.store.Close()
}

// ==================== IngestionStore ====================

// Ensure ingestionStore implements the interface.
var _ driven.IngestionStore = (*ingestionStore)(nil)

type ingestionStore struct {
	store *Store
}

// SaveRecord stores or updates an ingestion record.
func (s *ingestionStore) SaveRecord(ctx context.Context, record *domain.IngestionRecord) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := saveRecordTx(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func saveRecordTx(ctx context.Context, tx *sql.Tx, record *domain.IngestionRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ingestion_records (document_id, name, path, status,
			chunk_count, last_error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			last_error = excluded.last_error,
			updated_at = MAX(updated_at, excluded.updated_at)
	`, record.DocumentID, record.Name, record.Path, string(record.Status),
		record.ChunkCount, record.LastError, record.StartedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving ingestion record: %w", err)
	}
	return nil
}

// GetRecord retrieves the record for a document.
func (s *ingestionStore) GetRecord(ctx context.Context, documentID string) (*domain.IngestionRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, name, path, status, chunk_count, last_error, started_at, updated_at
		FROM ingestion_records WHERE document_id = ?
	`, documentID)

	var record domain.IngestionRecord
	var status string
	err := row.Scan(&record.DocumentID, &record.Name, &record.Path, &status,
		&record.ChunkCount, &record.LastError, &record.StartedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ingestion record: %w", err)
	}
	record.Status = domain.IngestionStatus(status)
	return &record, nil
}

// ListRecords returns all ingestion records, newest first.
func (s *ingestionStore) ListRecords(ctx context.Context) ([]domain.IngestionRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, name, path, status, chunk_count, last_error, started_at, updated_at
		FROM ingestion_records
		ORDER BY updated_at DESC, document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ingestion records: %w", err)
	}
	defer rows.Close()

	var records []domain.IngestionRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var record domain.IngestionRecord
		var status string
		if err := rows.Scan(&record.DocumentID, &record.Name, &record.Path, &status,
			&record.ChunkCount, &record.LastError, &record.StartedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning ingestion record: %w", err)
		}
		record.Status = domain.IngestionStatus(status)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingestion records: %w", err)
	}

	return records, nil
}

// ==================== SearchEngine ====================

// Ensure searchEngine implements the interface.
var _ driven.SearchEngine = (*searchEngine)(nil)

type searchEngine struct {
	store *Store
}

// Search performs a BM25-ranked full-text search over embedded chunk
// text. bm25() returns lower-is-better, so scores are negated. The
// ORDER BY makes ties fully deterministic.
func (s *searchEngine) Search(ctx context.Context, query string, limit int) ([]driven.SearchHit, error) {
	match := ftsMatchQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank, c.position, c.document_id, c.id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.SearchHit
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search hits: %w", err)
	}

	return hits, nil
}

// ftsMatchQuery turns free text into an FTS5 MATCH expression. Each
// term is quoted so user punctuation cannot change the query syntax,
// and terms are OR-ed for recall; BM25 ranks multi-term matches higher.
func ftsMatchQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// ==================== VectorIndex ====================

// Ensure vectorIndex implements the interface.
var _ driven.VectorIndex = (*vectorIndex)(nil)

type vectorIndex struct {
	store *Store
}

// Search runs an exact cosine scan over all stored embeddings. Corpora
// here are document collections in the tens of thousands of chunks,
// where a flat scan stays well under query latency budgets and avoids
// approximate-index recall loss.
func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, embedding
		FROM chunks
		WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	type scored struct {
		hit        driven.VectorHit
		position   int
		documentID string
	}
	var hits []scored

	for rows.Next() {
		var id, documentID string
		var position int
		var blob []byte
		if err := rows.Scan(&id, &documentID, &position, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}

		embedding := bytesToFloat32Slice(blob)
		if len(embedding) == 0 {
			continue
		}

		hits = append(hits, scored{
			hit: driven.VectorHit{
				ChunkID:    id,
				Similarity: cosineSimilarity(query, embedding),
			},
			position:   position,
			documentID: documentID,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].hit.Similarity != hits[j].hit.Similarity {
			return hits[i].hit.Similarity > hits[j].hit.Similarity
		}
		if hits[i].position != hits[j].position {
			return hits[i].position < hits[j].position
		}
		if hits[i].documentID != hits[j].documentID {
			return hits[i].documentID < hits[j].documentID
		}
		return hits[i].hit.ChunkID < hits[j].hit.ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]driven.VectorHit, len(hits))
	for i, h := range hits {
		out[i] = h.hit
	}
	return out, nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// cosineSimilarity computes the cosine of the angle between two
// vectors; zero when either has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var metadataJSON string

	err := row.Scan(&doc.ID, &doc.Name, &doc.Path, &doc.Content, &doc.Format,
		&metadataJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if metadataJSON != "" && metadataJSON != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling document metadata: %w", err)
		}
	}

	return &doc, nil
}

// scanChunk scans a contextual chunk from the current row.
func scanChunk(rows *sql.Rows) (*domain.ContextualChunk, error) {
	var chunk domain.ContextualChunk
	var blob []byte

	if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content,
		&chunk.TokenCount, &chunk.PrevID, &chunk.NextID, &chunk.Context,
		&chunk.EmbeddedText, &blob); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Embedding = bytesToFloat32Slice(blob)
	return &chunk, nil
}
