package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestOrchestrator = (*IngestService)(nil)

// DefaultDocumentParallelism bounds concurrent document ingestions.
const DefaultDocumentParallelism = 2

// DefaultChunkParallelism bounds concurrent annotate+embed calls
// within one document.
const DefaultChunkParallelism = 4

// DefaultAnnotationRetries is how many times a failed annotation is
// retried before the chunk is indexed without context.
const DefaultAnnotationRetries = 2

// sidecar mirrors the JSON metadata file written next to each
// normalised document by the convert step.
type sidecar struct {
	Title  string            `json:"title"`
	Format string            `json:"format"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// IngestService runs the contextual ingestion pipeline: chunk each
// document, annotate and embed chunks concurrently, then commit the
// document, its chunks and its ingestion record in one transaction.
//
// Failures are isolated per document. A document that fails is
// recorded as failed and the batch continues.
type IngestService struct {
	docStore    driven.DocumentStore
	ingestStore driven.IngestionStore
	processor   driven.PostProcessor
	annotator   *AnnotationService
	embedder    driven.EmbeddingService

	docParallelism   int
	chunkParallelism int
	annotateRetries  int
	retryBase        time.Duration
}

// IngestOption configures the ingest service.
type IngestOption func(*IngestService)

// WithDocumentParallelism bounds concurrent document ingestions.
func WithDocumentParallelism(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.docParallelism = n
		}
	}
}

// WithChunkParallelism bounds concurrent chunk annotate+embed calls.
func WithChunkParallelism(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.chunkParallelism = n
		}
	}
}

// WithAnnotationRetries sets the retry limit for failed annotations.
func WithAnnotationRetries(n int) IngestOption {
	return func(s *IngestService) {
		if n >= 0 {
			s.annotateRetries = n
		}
	}
}

// NewIngestService creates a new ingestion orchestrator.
func NewIngestService(
	docStore driven.DocumentStore,
	ingestStore driven.IngestionStore,
	processor driven.PostProcessor,
	annotator *AnnotationService,
	embedder driven.EmbeddingService,
	opts ...IngestOption,
) *IngestService {
	s := &IngestService{
		docStore:         docStore,
		ingestStore:      ingestStore,
		processor:        processor,
		annotator:        annotator,
		embedder:         embedder,
		docParallelism:   DefaultDocumentParallelism,
		chunkParallelism: DefaultChunkParallelism,
		annotateRetries:  DefaultAnnotationRetries,
		retryBase:        500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IngestDir ingests every normalised text document under dir.
// Document failures are counted, not propagated; the returned error
// covers directory access only.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (*driving.IngestStatus, error) {
	logger.Section("Ingestion")
	logger.Info("Ingesting directory: %s", dir)

	docs, err := s.loadDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load directory %s: %w", dir, err)
	}
	logger.Info("Found %d documents", len(docs))

	status := &driving.IngestStatus{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.docParallelism)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			err := s.IngestDocument(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Document %s failed: %v", doc.Name, err)
				status.DocumentsFailed++
				return nil
			}
			status.DocumentsProcessed++

			count, countErr := s.docStore.ChunkCount(gctx, doc.ID)
			if countErr == nil {
				status.ChunksIndexed += count
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return status, err
	}

	logger.Info("Ingestion complete: %d processed, %d failed, %d chunks",
		status.DocumentsProcessed, status.DocumentsFailed, status.ChunksIndexed)
	return status, nil
}

// IngestDocument runs the full pipeline for one document. The commit
// is a single transaction, so concurrent queries never see a
// half-indexed document. Re-ingesting unchanged content is a no-op at
// the row level: document and chunk IDs are content-path derived.
func (s *IngestService) IngestDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	record := &domain.IngestionRecord{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Path:       doc.Path,
		Status:     domain.IngestionProcessing,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.ingestStore.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("save processing record: %w", err)
	}

	contextual, err := s.buildChunks(ctx, doc)
	if err != nil {
		record.Status = domain.IngestionFailed
		record.LastError = err.Error()
		record.UpdatedAt = time.Now().UTC()
		if saveErr := s.ingestStore.SaveRecord(ctx, record); saveErr != nil {
			logger.Error("Save failed record for %s: %v", doc.ID, saveErr)
		}
		return &domain.IngestionDocumentError{DocumentID: doc.ID, Err: err}
	}

	record.Status = domain.IngestionCompleted
	record.ChunkCount = len(contextual)
	record.LastError = ""
	record.UpdatedAt = time.Now().UTC()

	if err := s.docStore.UpsertDocument(ctx, doc, contextual, record); err != nil {
		record.Status = domain.IngestionFailed
		record.LastError = err.Error()
		record.UpdatedAt = time.Now().UTC()
		if saveErr := s.ingestStore.SaveRecord(ctx, record); saveErr != nil {
			logger.Error("Save failed record for %s: %v", doc.ID, saveErr)
		}
		return &domain.IngestionDocumentError{DocumentID: doc.ID, Err: err}
	}

	logger.Info("Ingested %s: %d chunks", doc.Name, len(contextual))
	return nil
}

// Records returns all ingestion records, newest first.
func (s *IngestService) Records(ctx context.Context) ([]domain.IngestionRecord, error) {
	return s.ingestStore.ListRecords(ctx)
}

// buildChunks chunks the document and annotates and embeds each chunk
// concurrently. Annotation failures degrade to empty context after
// retries; an embedding failure after retries fails the document,
// since a partial chunk set must never be committed.
func (s *IngestService) buildChunks(ctx context.Context, doc *domain.Document) ([]domain.ContextualChunk, error) {
	chunks, err := s.processor.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w: no extractable text", doc.ID, domain.ErrInvalidInput)
	}

	contextual := make([]domain.ContextualChunk, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.chunkParallelism)

	for i := range chunks {
		i := i
		g.Go(func() error {
			chunk := chunks[i]

			chunkCtx := s.annotateChunk(gctx, doc, &chunk)
			embeddedText := domain.EmbedText(chunkCtx, chunk.Content)

			var embedding []float32
			err := retryBackoff(gctx, s.annotateRetries+1, s.retryBase, func() error {
				var embedErr error
				embedding, embedErr = s.embedder.Embed(gctx, embeddedText)
				return embedErr
			})
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
			}

			contextual[i] = domain.ContextualChunk{
				Chunk:        chunk,
				Context:      chunkCtx,
				EmbeddedText: embeddedText,
				Embedding:    embedding,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return contextual, nil
}

// annotateChunk returns the chunk's situating context, or an empty
// string once retries are exhausted. The chunk is indexed either way.
func (s *IngestService) annotateChunk(ctx context.Context, doc *domain.Document, chunk *domain.Chunk) string {
	var chunkCtx string
	err := retryBackoff(ctx, s.annotateRetries+1, s.retryBase, func() error {
		var annotateErr error
		chunkCtx, annotateErr = s.annotator.Annotate(ctx, doc, chunk)
		return annotateErr
	})
	if err != nil {
		logger.Warn("Annotation failed for chunk %s, indexing without context: %v", chunk.ID, err)
		return ""
	}
	return chunkCtx
}

// loadDir reads normalised documents (.txt plus optional .json
// sidecar) from dir, sorted by path for a stable ingestion order.
func (s *IngestService) loadDir(ctx context.Context, dir string) ([]*domain.Document, error) {
	var docs []*domain.Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		doc := &domain.Document{
			ID:      domain.DocumentID(path),
			Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:    path,
			Content: string(raw),
			Format:  "text",
		}

		if side, ok := readSidecar(path); ok {
			if side.Title != "" {
				doc.Name = side.Title
			}
			if side.Format != "" {
				doc.Format = side.Format
			}
			if len(side.Meta) > 0 {
				doc.Metadata = make(map[string]any, len(side.Meta))
				for k, v := range side.Meta {
					doc.Metadata[k] = v
				}
			}
		}

		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// readSidecar loads the JSON metadata written next to a normalised
// document, if present.
func readSidecar(docPath string) (*sidecar, bool) {
	sidePath := strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".json"
	raw, err := os.ReadFile(sidePath)
	if err != nil {
		return nil, false
	}

	var side sidecar
	if err := json.Unmarshal(raw, &side); err != nil {
		logger.Warn("Invalid sidecar %s: %v", sidePath, err)
		return nil, false
	}
	return &side, true
}
