package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-labs/corpusqa/internal/adapters/driven/storage/memory"
	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/postprocessors/chunker"
)

func newTestIngestService(store *memory.Store, llm *mockLLMService, embedder *mockEmbeddingService) *IngestService {
	annotator := NewAnnotationService(llm)
	return NewIngestService(
		store, store,
		chunker.New(chunker.WithChunkTokens(10), chunker.WithOverlapTokens(0)),
		annotator, embedder,
		WithAnnotationRetries(0),
	)
}

func testDocument() *domain.Document {
	content := "Revenue grew by twelve percent this year. " +
		"Growth was driven by subscription renewals across all regions. " +
		"Operating costs fell through vendor consolidation."
	return &domain.Document{
		ID:      domain.DocumentID("/corpus/report.txt"),
		Name:    "Quarterly Report",
		Path:    "/corpus/report.txt",
		Content: content,
		Format:  "text",
	}
}

func TestIngestService_IngestDocument(t *testing.T) {
	store := memory.NewStore()
	llm := &mockLLMService{responses: []string{"This chunk is part of the quarterly report."}}
	embedder := &mockEmbeddingService{embedding: []float32{0.1, 0.2, 0.3}}
	service := newTestIngestService(store, llm, embedder)
	ctx := context.Background()
	doc := testDocument()

	err := service.IngestDocument(ctx, doc)
	require.NoError(t, err)

	record, err := store.GetRecord(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionCompleted, record.Status)
	assert.Empty(t, record.LastError)
	assert.Equal(t, record.ChunkCount, 3)

	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, "This chunk is part of the quarterly report.", c.Context)
		assert.Equal(t, domain.EmbedText(c.Context, c.Content), c.EmbeddedText)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, c.Embedding)
	}
}

func TestIngestService_IngestDocument_AnnotationFailureDegrades(t *testing.T) {
	store := memory.NewStore()
	llm := &mockLLMService{generateErr: errors.New("model offline")}
	embedder := &mockEmbeddingService{embedding: []float32{0.1, 0.2, 0.3}}
	service := newTestIngestService(store, llm, embedder)
	ctx := context.Background()
	doc := testDocument()

	err := service.IngestDocument(ctx, doc)
	require.NoError(t, err)

	// Chunks are still indexed, without context.
	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Empty(t, c.Context)
		assert.Equal(t, c.Content, c.EmbeddedText)
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestIngestService_IngestDocument_EmbeddingFailureFailsDocument(t *testing.T) {
	store := memory.NewStore()
	llm := &mockLLMService{responses: []string{"context"}}
	embedder := &mockEmbeddingService{embedErr: &domain.EmbeddingError{Err: errors.New("connection refused")}}
	service := newTestIngestService(store, llm, embedder)
	ctx := context.Background()
	doc := testDocument()

	err := service.IngestDocument(ctx, doc)

	require.Error(t, err)
	var docErr *domain.IngestionDocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, doc.ID, docErr.DocumentID)

	// Nothing committed, record marked failed.
	record, recErr := store.GetRecord(ctx, doc.ID)
	require.NoError(t, recErr)
	assert.Equal(t, domain.IngestionFailed, record.Status)
	assert.NotEmpty(t, record.LastError)

	count, countErr := store.ChunkCount(ctx, doc.ID)
	require.NoError(t, countErr)
	assert.Zero(t, count)
}

func TestIngestService_IngestDocument_EmptyContent(t *testing.T) {
	store := memory.NewStore()
	service := newTestIngestService(store, &mockLLMService{}, &mockEmbeddingService{embedding: []float32{1}})
	ctx := context.Background()
	doc := &domain.Document{ID: "empty-doc", Name: "Empty", Content: ""}

	err := service.IngestDocument(ctx, doc)

	require.Error(t, err)
	record, recErr := store.GetRecord(ctx, "empty-doc")
	require.NoError(t, recErr)
	assert.Equal(t, domain.IngestionFailed, record.Status)
}

func TestIngestService_IngestDir(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "report.txt", "Revenue grew by twelve percent. Costs fell through consolidation.")
	writeTestFile(t, dir, "guide.txt", "New starters receive a laptop. Access is granted on day one.")
	writeTestFile(t, dir, "guide.json", `{"title": "Onboarding Guide", "format": "markdown", "meta": {"extension": ".md"}}`)
	writeTestFile(t, dir, "notes.md", "Not a normalised document, must be skipped.")

	store := memory.NewStore()
	llm := &mockLLMService{responses: []string{"context"}}
	embedder := &mockEmbeddingService{embedding: []float32{0.1, 0.2}}
	service := newTestIngestService(store, llm, embedder)
	ctx := context.Background()

	status, err := service.IngestDir(ctx, dir)

	require.NoError(t, err)
	assert.Equal(t, 2, status.DocumentsProcessed)
	assert.Zero(t, status.DocumentsFailed)
	assert.Greater(t, status.ChunksIndexed, 0)

	// The sidecar metadata was applied.
	guideDoc, err := store.GetDocument(ctx, domain.DocumentID(filepath.Join(dir, "guide.txt")))
	require.NoError(t, err)
	assert.Equal(t, "Onboarding Guide", guideDoc.Name)
	assert.Equal(t, "markdown", guideDoc.Format)
	assert.Equal(t, map[string]any{"extension": ".md"}, guideDoc.Metadata)

	records, err := service.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestIngestService_IngestDir_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "report.txt", "Revenue grew by twelve percent. Costs fell through consolidation.")

	store := memory.NewStore()
	llm := &mockLLMService{responses: []string{"context"}}
	embedder := &mockEmbeddingService{embedding: []float32{0.1, 0.2}}
	service := newTestIngestService(store, llm, embedder)
	ctx := context.Background()

	first, err := service.IngestDir(ctx, dir)
	require.NoError(t, err)
	second, err := service.IngestDir(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, first.ChunksIndexed, second.ChunksIndexed)

	docID := domain.DocumentID(filepath.Join(dir, "report.txt"))
	count, err := store.ChunkCount(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksIndexed, count)

	chunks, err := store.GetChunks(ctx, docID)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, domain.ChunkID(docID, c.Position), c.ID)
	}
}

func TestIngestService_IngestDir_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "good.txt", "Revenue grew by twelve percent this year.")
	writeTestFile(t, dir, "empty.txt", "")

	store := memory.NewStore()
	llm := &mockLLMService{responses: []string{"context"}}
	embedder := &mockEmbeddingService{embedding: []float32{0.1}}
	service := newTestIngestService(store, llm, embedder)

	status, err := service.IngestDir(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 1, status.DocumentsProcessed)
	assert.Equal(t, 1, status.DocumentsFailed)
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
