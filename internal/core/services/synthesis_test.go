package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

func testReport() *domain.FindingsReport {
	return &domain.FindingsReport{
		Query:  "How much did revenue grow?",
		Rounds: 1,
		Findings: []domain.Finding{
			{
				Claim:        "Revenue grew twelve percent",
				ChunkID:      "chunk-1",
				DocumentID:   "doc-1",
				DocumentName: "Quarterly Report",
				Position:     0,
				Excerpt:      "Revenue grew by twelve percent.",
			},
			{
				Claim:        "Growth was driven by renewals",
				ChunkID:      "chunk-2",
				DocumentID:   "doc-1",
				DocumentName: "Quarterly Report",
				Position:     4,
				Excerpt:      "Growth was driven by subscription renewals.",
			},
		},
	}
}

func TestSynthesisService_Synthesize_EmptyReport(t *testing.T) {
	llm := &mockLLMService{responses: []string{"should never be called"}}
	service := NewSynthesisService(llm)

	result, err := service.Synthesize(context.Background(), "Unknown topic?", &domain.FindingsReport{Rounds: 3})

	require.NoError(t, err)
	assert.Equal(t, domain.NotFoundAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	assert.False(t, result.Grounded)
	assert.Equal(t, 3, result.Rounds)
	assert.Zero(t, llm.callCount(), "empty report must not reach the model")
}

func TestSynthesisService_Synthesize_CitedAnswer(t *testing.T) {
	llm := &mockLLMService{responses: []string{
		"Revenue grew by twelve percent [1], driven by renewals [2]. Growth held steady [1].",
	}}
	service := NewSynthesisService(llm)

	result, err := service.Synthesize(context.Background(), "How much did revenue grow?", testReport())

	require.NoError(t, err)
	assert.True(t, result.Grounded)
	assert.Equal(t, 1, result.Rounds)

	// Sources follow first-use order with the repeat collapsed.
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "chunk-1", result.Sources[0].ChunkID)
	assert.Equal(t, "chunk-2", result.Sources[1].ChunkID)
	assert.Equal(t, "Quarterly Report", result.Sources[0].DocumentName)
}

func TestSynthesisService_Synthesize_RegeneratesOnViolation(t *testing.T) {
	llm := &mockLLMService{responses: []string{
		"Revenue grew [7].",
		"Revenue grew by twelve percent [1].",
	}}
	service := NewSynthesisService(llm)

	result, err := service.Synthesize(context.Background(), "How much did revenue grow?", testReport())

	require.NoError(t, err)
	assert.True(t, result.Grounded)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "chunk-1", result.Sources[0].ChunkID)
	assert.Equal(t, 2, llm.callCount())
}

func TestSynthesisService_Synthesize_PersistentViolationSuppressed(t *testing.T) {
	llm := &mockLLMService{responses: []string{"Revenue grew [7]."}}
	service := NewSynthesisService(llm)

	_, err := service.Synthesize(context.Background(), "How much did revenue grow?", testReport())

	require.Error(t, err)
	var violation *domain.GroundingViolation
	assert.ErrorAs(t, err, &violation)
}

func TestSynthesisService_Synthesize_UncitedAnswerSuppressed(t *testing.T) {
	llm := &mockLLMService{responses: []string{"Revenue definitely grew a lot."}}
	service := NewSynthesisService(llm)

	_, err := service.Synthesize(context.Background(), "How much did revenue grow?", testReport())

	require.Error(t, err)
	var violation *domain.GroundingViolation
	require.ErrorAs(t, err, &violation)
	assert.Empty(t, violation.ChunkID)
}

func TestSynthesisService_Synthesize_GenerationError(t *testing.T) {
	llm := &mockLLMService{generateErr: errors.New("model offline")}
	service := NewSynthesisService(llm)

	_, err := service.Synthesize(context.Background(), "How much did revenue grow?", testReport())

	require.Error(t, err)
	assert.ErrorContains(t, err, "synthesis generation")
}

func TestSynthesisService_Synthesize_NilLLM(t *testing.T) {
	service := NewSynthesisService(nil)

	_, err := service.Synthesize(context.Background(), "How much did revenue grow?", testReport())

	require.ErrorIs(t, err, domain.ErrLLMUnavailable)
}
