// Package api exposes the question-answering pipeline over an
// OpenAI-compatible HTTP surface, so existing chat clients can point
// at a corpus without modification.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// pinger is the health-check surface shared by the driven services.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the OpenAI-compatible API.
type Server struct {
	engine *gin.Engine
	answer driving.AnswerService

	store     pinger
	embedding pinger
	llm       pinger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithHealthTargets registers the services the health endpoint probes.
// The store is mandatory for a healthy verdict; the model services
// only degrade it.
func WithHealthTargets(store, embedding, llm pinger) ServerOption {
	return func(s *Server) {
		s.store = store
		s.embedding = embedding
		s.llm = llm
	}
}

// NewServer creates the API server around an answer service.
func NewServer(answer driving.AnswerService, opts ...ServerOption) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine: engine,
		answer: answer,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine.POST("/v1/chat/completions", s.handleChatCompletions)
	engine.POST("/v1/embeddings", s.handleEmbeddings)
	engine.GET("/v1/models", s.handleListModels)
	engine.GET("/v1/models/:id", s.handleGetModel)
	engine.GET("/health", s.handleHealth)

	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves requests on addr until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// requestLogger tags each request with an ID and logs its outcome.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		logger.Debug("%s %s -> %d (%s) request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Millisecond), requestID)
	}
}
