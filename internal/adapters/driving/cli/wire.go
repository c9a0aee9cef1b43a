package cli

import (
	"fmt"

	ollamaembed "github.com/corpora-labs/corpusqa/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/corpora-labs/corpusqa/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/corpora-labs/corpusqa/internal/adapters/driven/llm/ollama"
	openaillm "github.com/corpora-labs/corpusqa/internal/adapters/driven/llm/openai"
	"github.com/corpora-labs/corpusqa/internal/adapters/driven/storage/sqlite"
	"github.com/corpora-labs/corpusqa/internal/config"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/core/services"
	"github.com/corpora-labs/corpusqa/internal/normalisers/markdown"
	"github.com/corpora-labs/corpusqa/internal/normalisers/plaintext"
	"github.com/corpora-labs/corpusqa/internal/postprocessors/chunker"
)

// Services are wired lazily on first use so commands like version and
// help never touch the store or the model endpoints. Tests inject
// mocks into these variables directly.
var (
	appConfig *config.Config
	appStore  *sqlite.Store

	answerService  driving.AnswerService
	ingestService  driving.IngestOrchestrator
	convertService driving.Converter

	embeddingService driven.EmbeddingService
	llmService       driven.LLMService
)

// initServices builds the service graph from configuration. It is a
// no-op when services are already present.
func initServices() error {
	if answerService != nil && ingestService != nil && convertService != nil {
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	appConfig = &cfg

	store, err := sqlite.NewStore(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	appStore = store

	embeddingService, err = buildEmbeddingService(cfg)
	if err != nil {
		return err
	}
	llmService, err = buildLLMService(cfg)
	if err != nil {
		return err
	}

	processor := chunker.New(
		chunker.WithChunkTokens(cfg.Chunking.ChunkTokens),
		chunker.WithOverlapTokens(cfg.Chunking.OverlapTokens),
	)
	annotator := services.NewAnnotationService(llmService,
		services.WithDocumentBudget(cfg.Ingestion.DocumentBudgetTokens))

	retriever := services.NewRetrievalService(
		store.DocumentStore(), store.SearchEngine(), store.VectorIndex(), embeddingService,
		services.WithRRFConstant(cfg.Retrieval.RRFConstant),
		services.WithQueryTimeout(cfg.QueryTimeout()),
	)
	research := services.NewResearchService(retriever, llmService,
		services.WithMaxRounds(cfg.Agent.MaxRounds),
		services.WithMaxSubQueries(cfg.Agent.MaxSubQueries),
		services.WithResearchTopK(cfg.Retrieval.TopK),
	)
	synthesis := services.NewSynthesisService(llmService)

	answerService = services.NewAnswerService(retriever, research, synthesis, llmService,
		services.WithAnswerTopK(cfg.Retrieval.TopK))
	ingestService = services.NewIngestService(
		store.DocumentStore(), store.IngestionStore(), processor, annotator, embeddingService,
		services.WithDocumentParallelism(cfg.Ingestion.Parallelism),
		services.WithChunkParallelism(cfg.Ingestion.ChunkParallelism),
		services.WithAnnotationRetries(cfg.Ingestion.AnnotationRetries),
	)
	convertService = services.NewConvertService(plaintext.New(), markdown.New())

	return nil
}

func buildEmbeddingService(cfg config.Config) (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.EmbeddingTimeout(),
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.EmbeddingTimeout(),
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	}
}

func buildLLMService(cfg config.Config) (driven.LLMService, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		})
	default:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	}
}
