package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Logical model names exposed by the API. They select orchestration
// behaviour rather than an actual model: ModelFull and ModelAlias run
// the full research pipeline, ModelSimple a single retrieval pass.
const (
	ModelFull   = "crew-ai-rag"
	ModelAlias  = "rag-model"
	ModelSimple = "simple-rag"
)

const modelOwner = "corpusqa"

// modelInfo is the OpenAI model object format.
type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// modelList is the OpenAI model listing envelope.
type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

func knownModel(id string) bool {
	return id == ModelFull || id == ModelAlias || id == ModelSimple
}

func (s *Server) handleListModels(c *gin.Context) {
	now := time.Now().Unix()
	c.JSON(http.StatusOK, modelList{
		Object: "list",
		Data: []modelInfo{
			{ID: ModelFull, Object: "model", Created: now, OwnedBy: modelOwner},
			{ID: ModelAlias, Object: "model", Created: now, OwnedBy: modelOwner},
			{ID: ModelSimple, Object: "model", Created: now, OwnedBy: modelOwner},
		},
	})
}

func (s *Server) handleGetModel(c *gin.Context) {
	id := c.Param("id")
	if !knownModel(id) {
		c.JSON(http.StatusNotFound, errorResponse("invalid_request_error", fmt.Sprintf("model %q does not exist", id)))
		return
	}
	c.JSON(http.StatusOK, modelInfo{ID: id, Object: "model", Created: time.Now().Unix(), OwnedBy: modelOwner})
}
