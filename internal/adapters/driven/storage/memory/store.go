// Package memory provides an in-memory store used by tests and as a
// reference implementation of the storage ports.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
)

// Ensure Store implements the storage interfaces.
var (
	_ driven.DocumentStore  = (*Store)(nil)
	_ driven.IngestionStore = (*Store)(nil)
	_ driven.SearchEngine   = (*Store)(nil)
	_ driven.VectorIndex    = vectorView{}
)

// Store is an in-memory implementation of the storage ports. It
// mirrors the SQLite adapter's semantics, including atomic per-document
// commits and deterministic result ordering, without touching disk.
type Store struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.ContextualChunk
	records   map[string]domain.IngestionRecord
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.ContextualChunk),
		records:   make(map[string]domain.IngestionRecord),
	}
}

// UpsertDocument stores the document, chunks and record under one lock,
// so readers never observe a partial commit.
func (s *Store) UpsertDocument(_ context.Context, doc *domain.Document, chunks []domain.ContextualChunk, record *domain.IngestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = *doc
	s.chunks[doc.ID] = append([]domain.ContextualChunk(nil), chunks...)
	if record != nil {
		s.records[record.DocumentID] = *record
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetChunks retrieves all contextual chunks for a document.
func (s *Store) GetChunks(_ context.Context, documentID string) ([]domain.ContextualChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := append([]domain.ContextualChunk(nil), s.chunks[documentID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// GetChunk retrieves a contextual chunk by ID.
func (s *Store) GetChunk(_ context.Context, id string) (*domain.ContextualChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID == id {
				return &chunk, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// ChunkCount returns the number of committed chunks for a document.
func (s *Store) ChunkCount(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[documentID]), nil
}

// DeleteDocument removes a document, its chunks and its record.
func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	delete(s.chunks, id)
	delete(s.records, id)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// SaveRecord stores or updates an ingestion record.
func (s *Store) SaveRecord(_ context.Context, record *domain.IngestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.DocumentID] = *record
	return nil
}

// GetRecord retrieves the record for a document.
func (s *Store) GetRecord(_ context.Context, documentID string) (*domain.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

// ListRecords returns all ingestion records, newest first.
func (s *Store) ListRecords(_ context.Context) ([]domain.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.IngestionRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].DocumentID < records[j].DocumentID
	})
	return records, nil
}

// Search performs a naive term-frequency keyword search over the
// embedded text of all chunks. Ordering matches the SQLite adapter:
// score, then position, then document ID, then chunk ID.
func (s *Store) Search(_ context.Context, query string, limit int) ([]driven.SearchHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		hit        driven.SearchHit
		position   int
		documentID string
	}
	var hits []scored

	for docID, chunks := range s.chunks {
		for _, chunk := range chunks {
			text := strings.ToLower(chunk.EmbeddedText)
			if text == "" {
				text = strings.ToLower(chunk.Content)
			}
			score := 0.0
			for _, term := range terms {
				score += float64(strings.Count(text, term))
			}
			if score > 0 {
				hits = append(hits, scored{
					hit:        driven.SearchHit{ChunkID: chunk.ID, Score: score},
					position:   chunk.Position,
					documentID: docID,
				})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].hit.Score != hits[j].hit.Score {
			return hits[i].hit.Score > hits[j].hit.Score
		}
		if hits[i].position != hits[j].position {
			return hits[i].position < hits[j].position
		}
		if hits[i].documentID != hits[j].documentID {
			return hits[i].documentID < hits[j].documentID
		}
		return hits[i].hit.ChunkID < hits[j].hit.ChunkID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]driven.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = h.hit
	}
	return out, nil
}

// VectorIndex returns a driven.VectorIndex view over the store. The
// lexical and vector Search methods share a signature name, so the
// vector side lives behind a view type.
func (s *Store) VectorIndex() driven.VectorIndex {
	return vectorView{s}
}

type vectorView struct {
	s *Store
}

// Search finds the k nearest stored embeddings by cosine similarity.
func (v vectorView) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	return v.s.searchVectors(ctx, query, k)
}

// searchVectors is an exact cosine scan over stored embeddings with
// the same deterministic tie-break as the SQLite adapter.
func (s *Store) searchVectors(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		hit        driven.VectorHit
		position   int
		documentID string
	}
	var hits []scored

	for docID, chunks := range s.chunks {
		for _, chunk := range chunks {
			if len(chunk.Embedding) == 0 {
				continue
			}
			hits = append(hits, scored{
				hit: driven.VectorHit{
					ChunkID:    chunk.ID,
					Similarity: cosineSimilarity(query, chunk.Embedding),
				},
				position:   chunk.Position,
				documentID: docID,
			})
		}
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

// cosineSimilarity computes the cosine of the angle between two
// vectors; zero when either vector has zero magnitude.
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
