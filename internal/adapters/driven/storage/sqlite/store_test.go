package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testDocument(id, name, content string) (*domain.Document, []domain.ContextualChunk) {
	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        id,
		Name:      name,
		Path:      "/corpus/" + id + ".txt",
		Content:   content,
		Format:    "text",
		Metadata:  map[string]any{"lang": "en"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	chunk := domain.ContextualChunk{
		Chunk: domain.Chunk{
			ID:         domain.ChunkID(id, 0),
			DocumentID: id,
			Position:   0,
			Content:    content,
			TokenCount: 4,
		},
		Context:      "Part of " + name + ".",
		EmbeddedText: "Part of " + name + ".\n\n" + content,
		Embedding:    []float32{0.5, 0.25, -0.75},
	}

	return doc, []domain.ContextualChunk{chunk}
}

func completedRecord(doc *domain.Document, chunkCount int) *domain.IngestionRecord {
	now := time.Now().UTC()
	return &domain.IngestionRecord{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Path:       doc.Path,
		Status:     domain.IngestionCompleted,
		ChunkCount: chunkCount,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_UpsertAndGetDocument(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	doc, chunks := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, completedRecord(doc, 1)))

	got, err := docStore.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", got.Name)
	assert.Equal(t, "Revenue grew by twelve percent.", got.Content)
	assert.Equal(t, map[string]any{"lang": "en"}, got.Metadata)

	gotChunks, err := docStore.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, gotChunks, 1)
	assert.Equal(t, chunks[0].ID, gotChunks[0].ID)
	assert.Equal(t, chunks[0].Context, gotChunks[0].Context)
	assert.Equal(t, chunks[0].EmbeddedText, gotChunks[0].EmbeddedText)
	assert.Equal(t, []float32{0.5, 0.25, -0.75}, gotChunks[0].Embedding)

	record, err := store.IngestionStore().GetRecord(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionCompleted, record.Status)
	assert.Equal(t, 1, record.ChunkCount)
}

func TestStore_GetDocument_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.DocumentStore().GetDocument(context.Background(), "missing")

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_GetChunk_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.DocumentStore().GetChunk(context.Background(), "missing")

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpsertDocument_Idempotent(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	doc, chunks := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, completedRecord(doc, 1)))
	require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, completedRecord(doc, 1)))

	count, err := docStore.ChunkCount(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_UpsertDocument_RemovesStaleChunks(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	doc, chunks := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	extra := chunks[0]
	extra.ID = domain.ChunkID("doc-1", 1)
	extra.Position = 1
	require.NoError(t, docStore.UpsertDocument(ctx, doc, append(chunks, extra), completedRecord(doc, 2)))

	// Re-ingest with a single chunk: the second must disappear.
	require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, completedRecord(doc, 1)))

	count, err := docStore.ChunkCount(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = docStore.GetChunk(ctx, extra.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_DeleteDocument_Cascades(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	doc, chunks := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, nil))
	require.NoError(t, docStore.DeleteDocument(ctx, "doc-1"))

	count, err := docStore.ChunkCount(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_Search(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	docA, chunksA := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	docB, chunksB := testDocument("doc-2", "Onboarding Guide", "New starters receive a laptop.")
	require.NoError(t, docStore.UpsertDocument(ctx, docA, chunksA, nil))
	require.NoError(t, docStore.UpsertDocument(ctx, docB, chunksB, nil))

	hits, err := store.SearchEngine().Search(ctx, "revenue", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, chunksA[0].ID, hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestStore_Search_PunctuationSafe(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	doc, chunks := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, nil))

	// Quotes and operators in the query must not break the FTS syntax.
	hits, err := store.SearchEngine().Search(ctx, `"revenue" AND (growth*`, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestStore_Search_EmptyQuery(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.SearchEngine().Search(context.Background(), "   ", 10)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_VectorSearch(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	docA, chunksA := testDocument("doc-1", "Quarterly Report", "Revenue grew by twelve percent.")
	chunksA[0].Embedding = []float32{1, 0, 0}
	docB, chunksB := testDocument("doc-2", "Onboarding Guide", "New starters receive a laptop.")
	chunksB[0].Embedding = []float32{0, 1, 0}
	require.NoError(t, docStore.UpsertDocument(ctx, docA, chunksA, nil))
	require.NoError(t, docStore.UpsertDocument(ctx, docB, chunksB, nil))

	hits, err := store.VectorIndex().Search(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, chunksA[0].ID, hits[0].ChunkID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestStore_VectorSearch_LimitsToK(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	docA, chunksA := testDocument("doc-1", "Quarterly Report", "Revenue grew.")
	docB, chunksB := testDocument("doc-2", "Onboarding Guide", "Laptops arrive.")
	require.NoError(t, docStore.UpsertDocument(ctx, docA, chunksA, nil))
	require.NoError(t, docStore.UpsertDocument(ctx, docB, chunksB, nil))

	hits, err := store.VectorIndex().Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_VectorSearch_DeterministicOnTies(t *testing.T) {
	store := newTestStore(t)
	docStore := store.DocumentStore()
	ctx := context.Background()

	// Identical embeddings at the same position: only the document ID
	// can order them. Inserted out of order on purpose.
	for _, id := range []string{"doc-c", "doc-a", "doc-b"} {
		doc, chunks := testDocument(id, "Copy "+id, "Identical content.")
		chunks[0].Embedding = []float32{1, 0, 0}
		require.NoError(t, docStore.UpsertDocument(ctx, doc, chunks, nil))
	}

	first, err := store.VectorIndex().Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, domain.ChunkID("doc-a", 0), first[0].ChunkID)
	assert.Equal(t, domain.ChunkID("doc-b", 0), first[1].ChunkID)
	assert.Equal(t, domain.ChunkID("doc-c", 0), first[2].ChunkID)

	second, err := store.VectorIndex().Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_Ping(t *testing.T) {
	store := newTestStore(t)

	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.DocumentStore().Ping(context.Background()))
}

func TestStore_ListRecords_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ingestStore := store.IngestionStore()
	ctx := context.Background()

	older := &domain.IngestionRecord{
		DocumentID: "doc-1",
		Name:       "Older",
		Status:     domain.IngestionCompleted,
		StartedAt:  time.Now().UTC().Add(-time.Hour),
		UpdatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	newer := &domain.IngestionRecord{
		DocumentID: "doc-2",
		Name:       "Newer",
		Status:     domain.IngestionProcessing,
		StartedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, ingestStore.SaveRecord(ctx, older))
	require.NoError(t, ingestStore.SaveRecord(ctx, newer))

	records, err := ingestStore.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doc-2", records[0].DocumentID)
	assert.Equal(t, "doc-1", records[1].DocumentID)
}

func TestStore_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Reopening the same database must not re-run applied migrations.
	second, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFloat32RoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}

	out := bytesToFloat32Slice(float32SliceToBytes(in))

	assert.Equal(t, in, out)
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
