// Package config loads and validates the CorpusQA configuration.
//
// Configuration is read from a TOML file, with selected values
// overridable through environment variables (loaded from .env when
// present). The resulting Config is an explicit object threaded
// through component constructors; no component reads ambient state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ServerConfig configures the HTTP API facade.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig configures the SQLite-backed vector store.
type StoreConfig struct {
	// DataDir is where the database lives. Empty means ~/.corpusqa/data.
	DataDir string `toml:"data_dir"`
}

// EmbeddingConfig configures the embedding service adapter.
type EmbeddingConfig struct {
	// Provider selects the adapter: "ollama" or "openai".
	Provider string `toml:"provider"`

	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`

	// TimeoutSecs bounds each embedding request.
	TimeoutSecs int `toml:"timeout_secs"`
}

// LLMConfig configures the generation service adapter.
type LLMConfig struct {
	// Provider selects the adapter: "ollama" or "openai".
	Provider string `toml:"provider"`

	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`

	// TimeoutSecs bounds each generation request.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	// ChunkTokens is the maximum tokens per chunk.
	ChunkTokens int `toml:"chunk_tokens"`

	// OverlapTokens is the token overlap between adjacent chunks.
	// Must be strictly less than ChunkTokens.
	OverlapTokens int `toml:"overlap_tokens"`
}

// RetrievalConfig configures the hybrid retriever.
type RetrievalConfig struct {
	// TopK is the number of fused candidates returned per query.
	TopK int `toml:"top_k"`

	// RRFConstant is the c in 1/(rank+c) reciprocal-rank fusion.
	RRFConstant int `toml:"rrf_constant"`

	// QueryTimeoutSecs bounds the whole retrieval call, including the
	// query embedding.
	QueryTimeoutSecs int `toml:"query_timeout_secs"`
}

// AgentConfig configures the research and synthesis agents.
type AgentConfig struct {
	// MaxRounds caps research retrieval rounds.
	MaxRounds int `toml:"max_rounds"`

	// MaxSubQueries caps question decomposition per round.
	MaxSubQueries int `toml:"max_sub_queries"`
}

// IngestionConfig configures the batch ingestion pipeline.
type IngestionConfig struct {
	// Parallelism bounds concurrent documents in a batch.
	Parallelism int `toml:"parallelism"`

	// ChunkParallelism bounds concurrent annotate/embed calls per document.
	ChunkParallelism int `toml:"chunk_parallelism"`

	// AnnotationRetries is how many times annotation is retried per
	// chunk before falling back to an empty context.
	AnnotationRetries int `toml:"annotation_retries"`

	// DocumentBudgetTokens truncates the document passed to the
	// annotator when it exceeds the model's context budget.
	DocumentBudgetTokens int `toml:"document_budget_tokens"`
}

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Agent     AgentConfig     `toml:"agent"`
	Ingestion IngestionConfig `toml:"ingestion"`
}

// Default returns the configuration used when no file is present.
// Defaults target a local Ollama install, matching the embedding and
// generation models the service was originally deployed with.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		Store:  StoreConfig{},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "nomic-embed-text",
			Dimensions:  768,
			TimeoutSecs: 30,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2",
			TimeoutSecs: 120,
		},
		Chunking:  ChunkingConfig{ChunkTokens: 400, OverlapTokens: 80},
		Retrieval: RetrievalConfig{TopK: 5, RRFConstant: 60, QueryTimeoutSecs: 15},
		Agent:     AgentConfig{MaxRounds: 3, MaxSubQueries: 3},
		Ingestion: IngestionConfig{
			Parallelism:          2,
			ChunkParallelism:     4,
			AnnotationRetries:    2,
			DocumentBudgetTokens: 6000,
		},
	}
}

// Load reads configuration from the given TOML file, applies
// environment overrides and validates the result. An empty path loads
// defaults plus environment overrides only.
func Load(path string) (Config, error) {
	// .env is optional; ignore absence.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CORPUSQA_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("CORPUSQA_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CORPUSQA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CORPUSQA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CORPUSQA_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("CORPUSQA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks configuration invariants. Chunk size, overlap and
// top-k are required, validated inputs rather than tunables with
// undocumented bounds.
func (c *Config) Validate() error {
	if c.Chunking.ChunkTokens <= 0 {
		return fmt.Errorf("chunking.chunk_tokens must be positive, got %d", c.Chunking.ChunkTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must not be negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.ChunkTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be less than chunking.chunk_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.ChunkTokens)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.MaxSubQueries <= 0 {
		return fmt.Errorf("agent.max_sub_queries must be positive, got %d", c.Agent.MaxSubQueries)
	}
	if c.Ingestion.Parallelism <= 0 {
		return fmt.Errorf("ingestion.parallelism must be positive, got %d", c.Ingestion.Parallelism)
	}
	if c.Ingestion.ChunkParallelism <= 0 {
		return fmt.Errorf("ingestion.chunk_parallelism must be positive, got %d", c.Ingestion.ChunkParallelism)
	}
	if c.Ingestion.AnnotationRetries < 0 {
		return fmt.Errorf("ingestion.annotation_retries must not be negative, got %d", c.Ingestion.AnnotationRetries)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be ollama or openai, got %q", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("llm.provider must be ollama or openai, got %q", c.LLM.Provider)
	}
	return nil
}

// EmbeddingTimeout returns the embedding request timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSecs) * time.Second
}

// LLMTimeout returns the generation request timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// QueryTimeout returns the retrieval call timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Retrieval.QueryTimeoutSecs) * time.Second
}
