package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

const synthesisPrompt = `Answer the question using only the numbered findings below.
Cite a finding after every claim with its number in square brackets,
for example [1]. Do not use any knowledge beyond the findings. If the
findings do not answer the question, say so.

Question: %s

Findings:
%s

Answer:`

// citationPattern matches [n] citation markers in a generated answer.
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// SynthesisService turns a findings report into a cited answer.
//
// Grounding is enforced, not assumed: every citation in the generated
// answer must resolve to a finding in the report. One regeneration is
// attempted on a violation; after that the answer is suppressed with
// *domain.GroundingViolation.
type SynthesisService struct {
	llm driven.LLMService
}

// NewSynthesisService creates a new synthesis service.
func NewSynthesisService(llm driven.LLMService) *SynthesisService {
	return &SynthesisService{llm: llm}
}

// Synthesize generates the final answer for the query. An empty report
// short-circuits to the fixed not-found answer without a model call.
func (s *SynthesisService) Synthesize(ctx context.Context, query string, report *domain.FindingsReport) (*domain.AnswerResult, error) {
	if report == nil || len(report.Findings) == 0 {
		logger.Debug("Synthesis: empty report, returning not-found answer")
		return &domain.AnswerResult{
			Answer:   domain.NotFoundAnswer,
			Sources:  []domain.SourceRef{},
			Rounds:   reportRounds(report),
			Grounded: false,
		}, nil
	}

	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	prompt := fmt.Sprintf(synthesisPrompt, query, formatFindings(report.Findings))

	// One regeneration is allowed before giving up on grounding.
	var lastViolation *domain.GroundingViolation
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			logger.Warn("Synthesis: regenerating after grounding violation: %v", lastViolation)
		}

		answer, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{
			MaxTokens:   1500,
			Temperature: 0.2,
		})
		if err != nil {
			return nil, fmt.Errorf("synthesis generation: %w", err)
		}
		answer = strings.TrimSpace(answer)

		sources, violation := resolveCitations(answer, report)
		if violation != nil {
			lastViolation = violation
			continue
		}

		return &domain.AnswerResult{
			Answer:   answer,
			Sources:  sources,
			Rounds:   report.Rounds,
			Grounded: true,
		}, nil
	}

	return nil, lastViolation
}

// resolveCitations maps [n] markers back to findings, in first-use
// order with duplicates collapsed. A marker outside the report, or an
// answer with no markers at all, is a grounding violation.
func resolveCitations(answer string, report *domain.FindingsReport) ([]domain.SourceRef, *domain.GroundingViolation) {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil, &domain.GroundingViolation{}
	}

	var sources []domain.SourceRef
	seen := make(map[string]bool)

	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(report.Findings) {
			return nil, &domain.GroundingViolation{ChunkID: m[0]}
		}

		f := report.Findings[n-1]
		if !report.HasFinding(f.ChunkID) {
			return nil, &domain.GroundingViolation{ChunkID: f.ChunkID}
		}
		if seen[f.ChunkID] {
			continue
		}
		seen[f.ChunkID] = true

		sources = append(sources, domain.SourceRef{
			DocumentID:   f.DocumentID,
			DocumentName: f.DocumentName,
			ChunkID:      f.ChunkID,
			Position:     f.Position,
		})
	}

	return sources, nil
}

// formatFindings renders findings as numbered blocks for prompting.
func formatFindings(findings []domain.Finding) string {
	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, f.Claim, f.DocumentName)
	}
	return strings.TrimSpace(b.String())
}

func reportRounds(report *domain.FindingsReport) int {
	if report == nil {
		return 0
	}
	return report.Rounds
}
