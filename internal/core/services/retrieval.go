package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.Retriever = (*RetrievalService)(nil)

// DefaultRRFConstant dampens the contribution of top ranks during
// reciprocal-rank fusion.
const DefaultRRFConstant = 60

// RetrievalService performs hybrid retrieval: lexical and vector
// searches run concurrently over the same committed snapshot and are
// merged with reciprocal-rank fusion. The query path is read-only.
type RetrievalService struct {
	docStore         driven.DocumentStore
	searchEngine     driven.SearchEngine
	vectorIndex      driven.VectorIndex
	embeddingService driven.EmbeddingService

	rrfConstant  int
	queryTimeout time.Duration
}

// RetrievalOption configures the retrieval service.
type RetrievalOption func(*RetrievalService)

// WithRRFConstant sets the reciprocal-rank fusion constant.
func WithRRFConstant(c int) RetrievalOption {
	return func(s *RetrievalService) {
		if c > 0 {
			s.rrfConstant = c
		}
	}
}

// WithQueryTimeout bounds the total time spent on one retrieval.
func WithQueryTimeout(d time.Duration) RetrievalOption {
	return func(s *RetrievalService) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// NewRetrievalService creates a new hybrid retrieval service.
func NewRetrievalService(
	docStore driven.DocumentStore,
	searchEngine driven.SearchEngine,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
	opts ...RetrievalOption,
) *RetrievalService {
	s := &RetrievalService{
		docStore:         docStore,
		searchEngine:     searchEngine,
		vectorIndex:      vectorIndex,
		embeddingService: embeddingService,
		rrfConstant:      DefaultRRFConstant,
		queryTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Retrieve returns the top-k fused candidates for the query.
//
// Both searches run at breadth 2k so that a chunk ranked just outside
// the top k on each list can still win on its fused score. If exactly
// one modality fails the other's results are used alone; only when
// both fail does the query fail, wrapped in *domain.RetrievalError.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.RetrievalCandidate{}, nil
	}
	if k <= 0 {
		k = 5
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	breadth := 2 * k
	logger.Debug("Retrieve: query=%q, k=%d, breadth=%d", query, k, breadth)

	var lexicalHits []driven.SearchHit
	var vectorHits []driven.VectorHit
	var lexicalErr, vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = s.lexicalSearch(ctx, query, breadth)
	}()

	go func() {
		defer wg.Done()
		vectorHits, vectorErr = s.vectorSearch(ctx, query, breadth)
	}()

	wg.Wait()

	if lexicalErr != nil && vectorErr != nil {
		logger.Warn("Retrieve: both modalities failed: lexical=%v, vector=%v", lexicalErr, vectorErr)
		return nil, &domain.RetrievalError{
			Err: fmt.Errorf("lexical: %v; vector: %w", lexicalErr, vectorErr),
		}
	}
	if lexicalErr != nil {
		logger.Warn("Retrieve: lexical search failed, using vector results only: %v", lexicalErr)
	}
	if vectorErr != nil {
		logger.Warn("Retrieve: vector search failed, using lexical results only: %v", vectorErr)
	}

	fused := s.fuse(lexicalHits, vectorHits)
	if len(fused) > k {
		fused = fused[:k]
	}

	candidates, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, &domain.RetrievalError{Err: fmt.Errorf("hydrate candidates: %w", err)}
	}

	logger.Debug("Retrieve: %d candidates", len(candidates))
	return candidates, nil
}

func (s *RetrievalService) lexicalSearch(ctx context.Context, query string, limit int) ([]driven.SearchHit, error) {
	if s.searchEngine == nil {
		return nil, domain.ErrStoreUnavailable
	}
	hits, err := s.searchEngine.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return hits, nil
}

func (s *RetrievalService) vectorSearch(ctx context.Context, query string, limit int) ([]driven.VectorHit, error) {
	if s.vectorIndex == nil {
		return nil, domain.ErrStoreUnavailable
	}
	if s.embeddingService == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	// The query is embedded exactly once per request.
	embedding, err := s.embeddingService.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectorIndex.Search(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// fuse merges the two ranked lists with reciprocal-rank fusion:
// each list contributes 1/(c+rank) for 1-based ranks, and a chunk
// absent from a list gets zero from it.
func (s *RetrievalService) fuse(lexical []driven.SearchHit, vector []driven.VectorHit) []domain.RetrievalCandidate {
	byID := make(map[string]*domain.RetrievalCandidate)

	for i, hit := range lexical {
		rank := i + 1
		byID[hit.ChunkID] = &domain.RetrievalCandidate{
			ChunkID:      hit.ChunkID,
			LexicalScore: hit.Score,
			LexicalRank:  rank,
			FusedScore:   1.0 / float64(s.rrfConstant+rank),
		}
	}

	for i, hit := range vector {
		rank := i + 1
		c, ok := byID[hit.ChunkID]
		if !ok {
			c = &domain.RetrievalCandidate{ChunkID: hit.ChunkID}
			byID[hit.ChunkID] = c
		}
		c.VectorScore = hit.Similarity
		c.VectorRank = rank
		c.FusedScore += 1.0 / float64(s.rrfConstant+rank)
	}

	fused := make([]domain.RetrievalCandidate, 0, len(byID))
	for _, c := range byID {
		fused = append(fused, *c)
	}

	// Deterministic ordering: fused score, then the better vector rank,
	// then the better lexical rank, then chunk ID.
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if ra, rb := rankOrMax(a.VectorRank), rankOrMax(b.VectorRank); ra != rb {
			return ra < rb
		}
		if ra, rb := rankOrMax(a.LexicalRank), rankOrMax(b.LexicalRank); ra != rb {
			return ra < rb
		}
		return a.ChunkID < b.ChunkID
	})

	return fused
}

func rankOrMax(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// hydrate fills candidates with chunk content, context and document
// metadata from the store.
func (s *RetrievalService) hydrate(ctx context.Context, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, error) {
	docNames := make(map[string]string)
	out := make([]domain.RetrievalCandidate, 0, len(candidates))

	for _, c := range candidates {
		chunk, err := s.docStore.GetChunk(ctx, c.ChunkID)
		if err != nil {
			// A chunk deleted between search and hydration is skipped,
			// not fatal.
			logger.Warn("Retrieve: chunk %s not hydratable: %v", c.ChunkID, err)
			continue
		}

		c.DocumentID = chunk.DocumentID
		c.Position = chunk.Position
		c.Content = chunk.Content
		c.Context = chunk.Context

		name, ok := docNames[chunk.DocumentID]
		if !ok {
			doc, err := s.docStore.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("get document %s: %w", chunk.DocumentID, err)
			}
			name = doc.Name
			docNames[chunk.DocumentID] = name
		}
		c.DocumentName = name

		out = append(out, c)
	}

	return out, nil
}
