package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const placeholderDimensions = 768

// embeddingsRequest accepts a single string or a list of strings, as
// the OpenAI API does.
type embeddingsRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingsResponse struct {
	Object string          `json:"object"`
	Data   []embeddingItem `json:"data"`
	Model  string          `json:"model"`
	Usage  usage           `json:"usage"`
}

// handleEmbeddings is a compatibility placeholder. Embeddings are an
// internal concern of the ingestion and retrieval pipelines; clients
// probing an OpenAI-compatible surface still get a well-formed
// zero-vector response per input.
func (s *Server) handleEmbeddings(c *gin.Context) {
	var req embeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_request_error", "malformed request body: "+err.Error()))
		return
	}

	count := 1
	if inputs, ok := req.Input.([]any); ok {
		count = len(inputs)
	}

	data := make([]embeddingItem, count)
	for i := range data {
		data[i] = embeddingItem{
			Object:    "embedding",
			Embedding: make([]float32, placeholderDimensions),
			Index:     i,
		}
	}

	c.JSON(http.StatusOK, embeddingsResponse{
		Object: "list",
		Data:   data,
		Model:  "nomic-embed-text",
	})
}
