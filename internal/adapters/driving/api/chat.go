package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// chatCompletionRequest is the OpenAI chat completion request format.
type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatMessage is a role-tagged conversation message. Sources is an
// extension field carrying the citations behind an assistant answer.
type chatMessage struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Sources []sourceItem `json:"sources,omitempty"`
}

// sourceItem is one cited source in the response extension field.
type sourceItem struct {
	DocumentName  string `json:"document_name"`
	ChunkPosition int    `json:"chunk_position"`
}

// chatCompletionResponse is the OpenAI chat completion response format.
type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   usage                  `json:"usage"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// apiError is the OpenAI-style error envelope.
type apiError struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func errorResponse(errType, message string) apiError {
	return apiError{Error: apiErrorDetail{Message: message, Type: errType}}
}

// handleChatCompletions answers the last user message in the request.
// The model field selects the orchestration mode: simple-rag runs a
// single retrieval pass, every other known model runs the full
// research pipeline.
func (s *Server) handleChatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_request_error", "malformed request body: "+err.Error()))
		return
	}
	if req.Model == "" {
		req.Model = ModelFull
	}
	if !knownModel(req.Model) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_request_error", fmt.Sprintf("unknown model %q", req.Model)))
		return
	}

	query, history := splitConversation(req.Messages)
	if query == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_request_error", "no user message provided"))
		return
	}

	mode := domain.ModeFull
	if req.Model == ModelSimple {
		mode = domain.ModeSimple
	}

	result, err := s.answer.Answer(c.Request.Context(), query, history, mode)
	if err != nil {
		s.writeAnswerError(c, req, err)
		return
	}

	c.JSON(http.StatusOK, buildCompletion(req, result))
}

// splitConversation extracts the query (last user message) and the
// prior assistant turns as answer history.
func splitConversation(messages []chatMessage) (string, []domain.AnswerResult) {
	var query string
	var history []domain.AnswerResult
	for _, m := range messages {
		switch m.Role {
		case "user":
			query = m.Content
		case "assistant":
			history = append(history, domain.AnswerResult{Answer: m.Content})
		}
	}
	return query, history
}

// writeAnswerError maps pipeline failures to HTTP statuses. A
// grounding violation is not an HTTP error: the answer was suppressed
// and the caller gets an explicit unable-to-answer completion instead
// of fabricated content.
func (s *Server) writeAnswerError(c *gin.Context, req chatCompletionRequest, err error) {
	var grounding *domain.GroundingViolation
	if errors.As(err, &grounding) {
		logger.Warn("Suppressed ungrounded answer: %v", err)
		c.JSON(http.StatusOK, buildRefusal(req))
		return
	}

	var retrieval *domain.RetrievalError
	if errors.As(err, &retrieval) || errors.Is(err, domain.ErrStoreUnavailable) {
		c.JSON(http.StatusBadGateway, errorResponse("upstream_error", err.Error()))
		return
	}

	var transient *domain.TransientServiceError
	if errors.As(err, &transient) || errors.Is(err, domain.ErrLLMUnavailable) || errors.Is(err, domain.ErrEmbeddingUnavailable) {
		c.JSON(http.StatusServiceUnavailable, errorResponse("service_unavailable", err.Error()))
		return
	}

	if errors.Is(err, domain.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_request_error", err.Error()))
		return
	}

	c.JSON(http.StatusInternalServerError, errorResponse("internal_error", err.Error()))
}

// buildCompletion wraps an answer in the chat completion envelope.
// Cited sources appear twice: structured on the message's sources
// extension field and as a trailer on the answer text.
func buildCompletion(req chatCompletionRequest, result *domain.AnswerResult) chatCompletionResponse {
	content := result.Answer
	sources := make([]sourceItem, 0, len(result.Sources))
	if len(result.Sources) > 0 {
		names := make([]string, 0, len(result.Sources))
		for _, src := range result.Sources {
			sources = append(sources, sourceItem{DocumentName: src.DocumentName, ChunkPosition: src.Position})
			names = append(names, fmt.Sprintf("%s (chunk %d)", src.DocumentName, src.Position))
		}
		content += "\n\n**Sources:** " + strings.Join(names, ", ")
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += estimateTokens(m.Content)
	}
	completionTokens := estimateTokens(content)

	return chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.New().String()[:8],
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: content, Sources: sources},
			FinishReason: "stop",
		}},
		Usage: usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// buildRefusal is the explicit unable-to-answer completion returned
// when the synthesised answer failed grounding and was suppressed.
func buildRefusal(req chatCompletionRequest) chatCompletionResponse {
	content := "I am unable to answer this question: the generated answer could not be verified against the retrieved documents."
	return chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.New().String()[:8],
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: usage{CompletionTokens: estimateTokens(content), TotalTokens: estimateTokens(content)},
	}
}

// estimateTokens approximates a token count from whitespace words.
func estimateTokens(text string) int {
	return len(strings.Fields(text)) * 13 / 10
}
