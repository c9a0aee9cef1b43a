package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-labs/corpusqa/internal/adapters/driven/storage/memory"
	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockSearchEngine implements driven.SearchEngine for testing.
type mockSearchEngine struct {
	hits      []driven.SearchHit
	searchErr error
}

func (m *mockSearchEngine) Search(_ context.Context, _ string, limit int) ([]driven.SearchHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:limit], nil
}

// mockVectorIndex implements driven.VectorIndex for testing.
type mockVectorIndex struct {
	hits      []driven.VectorHit
	searchErr error
}

func (m *mockVectorIndex) Search(_ context.Context, _ []float32, k int) ([]driven.VectorHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	embedding []float32
	embedErr  error
	dims      int
}

func (m *mockEmbeddingService) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.embedding, nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = m.embedding
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	if m.dims > 0 {
		return m.dims
	}
	return 768
}

func (m *mockEmbeddingService) ModelName() string {
	return "mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return nil
}

func (m *mockEmbeddingService) Close() error {
	return nil
}

// mockLLMService implements driven.LLMService for testing. Responses
// are consumed in call order; once exhausted the last one repeats.
type mockLLMService struct {
	mu          sync.Mutex
	responses   []string
	generateErr error
	prompts     []string
}

func (m *mockLLMService) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.generateErr != nil {
		return "", m.generateErr
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	response := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return response, nil
}

func (m *mockLLMService) Chat(_ context.Context, _ []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	return "", nil
}

func (m *mockLLMService) ModelName() string {
	return "mock-llm"
}

func (m *mockLLMService) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLMService) Close() error {
	return nil
}

func (m *mockLLMService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// --- Test helpers ---

func setupTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	docs := []struct {
		id      string
		name    string
		content string
	}{
		{"doc-1", "Quarterly Report", "Revenue grew by twelve percent."},
		{"doc-2", "Onboarding Guide", "New starters receive a laptop on day one."},
		{"doc-3", "Security Policy", "Passwords rotate every ninety days."},
	}

	for _, d := range docs {
		doc := &domain.Document{ID: d.id, Name: d.name, Content: d.content}
		chunk := domain.ContextualChunk{
			Chunk: domain.Chunk{
				ID:         "chunk-" + d.id,
				DocumentID: d.id,
				Position:   0,
				Content:    d.content,
			},
			EmbeddedText: d.content,
			Embedding:    []float32{1, 0, 0},
		}
		require.NoError(t, store.UpsertDocument(ctx, doc, []domain.ContextualChunk{chunk}, nil))
	}

	return store
}

func testSearchHits() []driven.SearchHit {
	return []driven.SearchHit{
		{ChunkID: "chunk-doc-1", Score: 4.2},
		{ChunkID: "chunk-doc-2", Score: 3.1},
		{ChunkID: "chunk-doc-3", Score: 1.9},
	}
}

func testVectorHits() []driven.VectorHit {
	return []driven.VectorHit{
		{ChunkID: "chunk-doc-2", Similarity: 0.95},
		{ChunkID: "chunk-doc-1", Similarity: 0.85},
		{ChunkID: "chunk-doc-3", Similarity: 0.75},
	}
}

// --- Tests ---

func TestNewRetrievalService(t *testing.T) {
	store := memory.NewStore()
	service := NewRetrievalService(store, nil, nil, nil)

	require.NotNil(t, service)
	assert.Equal(t, DefaultRRFConstant, service.rrfConstant)
}

func TestRetrievalService_Retrieve_EmptyQuery(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(store, &mockSearchEngine{hits: testSearchHits()}, nil, nil)

	candidates, err := service.Retrieve(context.Background(), "   \t ", 5)

	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRetrievalService_Retrieve_Hybrid(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{hits: testSearchHits()},
		&mockVectorIndex{hits: testVectorHits()},
		&mockEmbeddingService{embedding: []float32{1, 0, 0}},
	)

	candidates, err := service.Retrieve(context.Background(), "revenue", 3)

	require.NoError(t, err)
	require.Len(t, candidates, 3)

	// chunk-doc-1 and chunk-doc-2 have mirrored ranks (1st lexical +
	// 2nd vector vs 2nd lexical + 1st vector), so their fused scores
	// tie and the better vector rank wins.
	assert.Equal(t, "chunk-doc-2", candidates[0].ChunkID)
	assert.Equal(t, "chunk-doc-1", candidates[1].ChunkID)
	assert.Equal(t, "chunk-doc-3", candidates[2].ChunkID)

	// Hydration fills content and document metadata.
	assert.Equal(t, "Onboarding Guide", candidates[0].DocumentName)
	assert.Equal(t, "New starters receive a laptop on day one.", candidates[0].Content)
	assert.Equal(t, 1, candidates[0].VectorRank)
	assert.Equal(t, 2, candidates[0].LexicalRank)
	assert.Greater(t, candidates[0].FusedScore, 0.0)
}

func TestRetrievalService_Retrieve_TopKLimit(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{hits: testSearchHits()},
		&mockVectorIndex{hits: testVectorHits()},
		&mockEmbeddingService{embedding: []float32{1, 0, 0}},
	)

	candidates, err := service.Retrieve(context.Background(), "revenue", 1)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "chunk-doc-2", candidates[0].ChunkID)
}

func TestRetrievalService_Retrieve_LexicalFailureDegrades(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{searchErr: errors.New("index corrupt")},
		&mockVectorIndex{hits: testVectorHits()},
		&mockEmbeddingService{embedding: []float32{1, 0, 0}},
	)

	candidates, err := service.Retrieve(context.Background(), "revenue", 3)

	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "chunk-doc-2", candidates[0].ChunkID)
	assert.Zero(t, candidates[0].LexicalRank)
}

func TestRetrievalService_Retrieve_VectorFailureDegrades(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{hits: testSearchHits()},
		&mockVectorIndex{hits: testVectorHits()},
		&mockEmbeddingService{embedErr: errors.New("connection refused")},
	)

	candidates, err := service.Retrieve(context.Background(), "revenue", 3)

	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "chunk-doc-1", candidates[0].ChunkID)
	assert.Zero(t, candidates[0].VectorRank)
}

func TestRetrievalService_Retrieve_BothFail(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{searchErr: errors.New("index corrupt")},
		&mockVectorIndex{hits: testVectorHits()},
		&mockEmbeddingService{embedErr: errors.New("connection refused")},
	)

	_, err := service.Retrieve(context.Background(), "revenue", 3)

	require.Error(t, err)
	var retrievalErr *domain.RetrievalError
	assert.ErrorAs(t, err, &retrievalErr)
}

func TestRetrievalService_Retrieve_MissingChunkSkipped(t *testing.T) {
	store := setupTestStore(t)
	hits := append(testSearchHits(), driven.SearchHit{ChunkID: "chunk-gone", Score: 0.1})
	service := NewRetrievalService(store, &mockSearchEngine{hits: hits}, nil, nil)

	candidates, err := service.Retrieve(context.Background(), "revenue", 10)

	require.NoError(t, err)
	assert.Len(t, candidates, 3)
	for _, c := range candidates {
		assert.NotEqual(t, "chunk-gone", c.ChunkID)
	}
}

func TestRetrievalService_Retrieve_SingleModalityCandidatesSurface(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{hits: []driven.SearchHit{{ChunkID: "chunk-doc-1", Score: 4.2}}},
		&mockVectorIndex{hits: []driven.VectorHit{{ChunkID: "chunk-doc-2", Similarity: 0.95}}},
		&mockEmbeddingService{embedding: []float32{1, 0, 0}},
	)

	candidates, err := service.Retrieve(context.Background(), "revenue", 5)

	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Each chunk is rank 1 in exactly one list and absent from the
	// other, so the fused scores tie and the vector-ranked candidate
	// wins the tie-break. Neither is dropped.
	assert.Equal(t, "chunk-doc-2", candidates[0].ChunkID)
	assert.Equal(t, "chunk-doc-1", candidates[1].ChunkID)
	assert.Equal(t, candidates[0].FusedScore, candidates[1].FusedScore)
	assert.Zero(t, candidates[0].LexicalRank)
	assert.Zero(t, candidates[1].VectorRank)
}

func TestRetrievalService_Retrieve_VerbatimTermLiftsLexicalMatch(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	launch := &domain.Document{ID: "doc-a", Name: "Launch Plan", Content: "The new flagship router ships in March."}
	launchChunk := domain.ContextualChunk{
		Chunk:        domain.Chunk{ID: "chunk-doc-a", DocumentID: "doc-a", Position: 0, Content: launch.Content},
		EmbeddedText: launch.Content,
		Embedding:    []float32{1, 0, 0},
	}
	sheet := &domain.Document{ID: "doc-b", Name: "Hardware Datasheet", Content: "The ZX-9000 router supports PoE on all ports."}
	sheetChunk := domain.ContextualChunk{
		Chunk:        domain.Chunk{ID: "chunk-doc-b", DocumentID: "doc-b", Position: 0, Content: sheet.Content},
		EmbeddedText: sheet.Content,
		Embedding:    []float32{0.9, 0.4, 0},
	}
	require.NoError(t, store.UpsertDocument(ctx, launch, []domain.ContextualChunk{launchChunk}, nil))
	require.NoError(t, store.UpsertDocument(ctx, sheet, []domain.ContextualChunk{sheetChunk}, nil))

	service := NewRetrievalService(store, store, store.VectorIndex(),
		&mockEmbeddingService{embedding: []float32{1, 0, 0}})

	candidates, err := service.Retrieve(ctx, "ZX-9000", 2)

	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Vector similarity alone prefers the launch plan, but the model
	// number appears verbatim only in the datasheet; its lexical
	// contribution lifts it to the top.
	assert.Equal(t, "chunk-doc-b", candidates[0].ChunkID)
	assert.Equal(t, 1, candidates[0].LexicalRank)
	assert.Equal(t, 2, candidates[0].VectorRank)
	assert.Equal(t, "chunk-doc-a", candidates[1].ChunkID)
	assert.Zero(t, candidates[1].LexicalRank)
}

// slowEmbeddingService blocks until its context is cancelled.
type slowEmbeddingService struct {
	mockEmbeddingService
}

func (m *slowEmbeddingService) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRetrievalService_Retrieve_EmbeddingTimeoutBounded(t *testing.T) {
	store := setupTestStore(t)
	service := NewRetrievalService(
		store,
		&mockSearchEngine{searchErr: errors.New("index offline")},
		&mockVectorIndex{hits: testVectorHits()},
		&slowEmbeddingService{},
		WithQueryTimeout(50*time.Millisecond),
	)

	start := time.Now()
	_, err := service.Retrieve(context.Background(), "revenue", 3)

	require.Error(t, err)
	var retrievalErr *domain.RetrievalError
	assert.ErrorAs(t, err, &retrievalErr)
	assert.Less(t, time.Since(start), 5*time.Second)
}
