package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// healthResponse reports the reachability of the backing services.
type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// handleHealth probes the store and model services. An unreachable
// store makes the whole service unavailable; an unreachable model
// service only degrades it, since already-indexed content can still
// be listed and partially served.
func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok", Services: map[string]string{}}
	status := http.StatusOK

	probe := func(name string, p pinger) bool {
		if p == nil {
			resp.Services[name] = "not configured"
			return false
		}
		if err := p.Ping(c.Request.Context()); err != nil {
			resp.Services[name] = err.Error()
			return false
		}
		resp.Services[name] = "ok"
		return true
	}

	if !probe("store", s.store) {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	embeddingOK := probe("embedding", s.embedding)
	llmOK := probe("llm", s.llm)
	if resp.Status == "ok" && (!embeddingOK || !llmOK) {
		resp.Status = "degraded"
	}

	c.JSON(status, resp)
}
