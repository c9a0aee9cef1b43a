package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// ResearchState is a step in the research agent's loop.
type ResearchState string

const (
	// StateFormulating decomposes the question into sub-queries.
	StateFormulating ResearchState = "formulating"

	// StateRetrieving runs the sub-query retrievals.
	StateRetrieving ResearchState = "retrieving"

	// StateEvaluating extracts supported claims from the evidence.
	StateEvaluating ResearchState = "evaluating"

	// StateRetrying reformulates the query for another round.
	StateRetrying ResearchState = "retrying"

	// StateDone terminates the loop.
	StateDone ResearchState = "done"
)

// DefaultMaxRounds caps retrieval rounds per research run.
const DefaultMaxRounds = 3

// DefaultMaxSubQueries caps sub-queries per round.
const DefaultMaxSubQueries = 3

const formulatePrompt = `Decompose the following question into at most %d focused search
queries that together cover what is being asked. Prefer fewer queries
when the question is simple.

Question: %s

Respond with a JSON array of strings and nothing else.`

const evaluatePrompt = `You are assessing search evidence for a question.

Question: %s

Evidence:
%s

Extract every claim from the evidence that helps answer the question.
Each claim must be supported by exactly one evidence block, referenced
by its number. Then judge whether the evidence taken together is
sufficient to answer the question.

Respond with JSON and nothing else, in this shape:
{"sufficient": true, "claims": [{"claim": "...", "source": 1}]}`

const reformulatePrompt = `The question below was searched with insufficient results.

Question: %s
Previous queries: %s

Propose one alternative search query using different phrasing or terms.
Respond with the query text only.`

// ResearchService is the iterative evidence-gathering agent. It runs
// an explicit state loop: formulate sub-queries, retrieve, evaluate,
// and either stop or retry with a reformulated query.
//
// Empty evidence is a legitimate outcome, not an error: the report is
// returned with no findings and Exhausted set.
type ResearchService struct {
	retriever driving.Retriever
	llm       driven.LLMService

	maxRounds     int
	maxSubQueries int
	topK          int
}

// ResearchOption configures the research service.
type ResearchOption func(*ResearchService)

// WithMaxRounds caps retrieval rounds per run.
func WithMaxRounds(n int) ResearchOption {
	return func(s *ResearchService) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

// WithMaxSubQueries caps sub-queries per round.
func WithMaxSubQueries(n int) ResearchOption {
	return func(s *ResearchService) {
		if n > 0 {
			s.maxSubQueries = n
		}
	}
}

// WithResearchTopK sets how many candidates each sub-query retrieves.
func WithResearchTopK(k int) ResearchOption {
	return func(s *ResearchService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewResearchService creates a new research agent.
func NewResearchService(retriever driving.Retriever, llm driven.LLMService, opts ...ResearchOption) *ResearchService {
	s := &ResearchService{
		retriever:     retriever,
		llm:           llm,
		maxRounds:     DefaultMaxRounds,
		maxSubQueries: DefaultMaxSubQueries,
		topK:          5,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// evaluation is the parsed model judgement over one round's evidence.
type evaluation struct {
	Sufficient bool `json:"sufficient"`
	Claims     []struct {
		Claim  string `json:"claim"`
		Source int    `json:"source"`
	} `json:"claims"`
}

// Research gathers evidence for the query. Rounds are strictly
// sequential; retrievals within a round run concurrently. A retrieval
// failure aborts the run; model failures degrade instead, falling back
// to direct candidate findings.
func (s *ResearchService) Research(ctx context.Context, query string) (*domain.FindingsReport, error) {
	logger.Section("Research")
	logger.Debug("Research: query=%q", query)

	report := &domain.FindingsReport{Query: query}
	seen := make(map[string]bool)

	state := StateFormulating
	var subQueries []string
	var candidates []domain.RetrievalCandidate
	asked := []string{}

	for state != StateDone {
		switch state {
		case StateFormulating:
			subQueries = s.formulate(ctx, query)
			logger.Debug("Research: %d sub-queries: %v", len(subQueries), subQueries)
			state = StateRetrieving

		case StateRetrieving:
			report.Rounds++
			asked = append(asked, subQueries...)

			var err error
			candidates, err = s.retrieveAll(ctx, subQueries)
			if err != nil {
				return nil, fmt.Errorf("research round %d: %w", report.Rounds, err)
			}
			logger.Debug("Research: round %d retrieved %d candidates", report.Rounds, len(candidates))
			state = StateEvaluating

		case StateEvaluating:
			findings, sufficient := s.evaluate(ctx, query, candidates)
			for _, f := range findings {
				key := f.ChunkID + "\x00" + f.Claim
				if !seen[key] {
					seen[key] = true
					report.Findings = append(report.Findings, f)
				}
			}

			if sufficient && len(report.Findings) > 0 {
				state = StateDone
				break
			}
			if report.Rounds >= s.maxRounds {
				report.Exhausted = true
				state = StateDone
				break
			}
			state = StateRetrying

		case StateRetrying:
			subQueries = []string{s.reformulate(ctx, query, asked)}
			logger.Debug("Research: retrying with %q", subQueries[0])
			state = StateRetrieving
		}
	}

	logger.Info("Research: %d findings in %d rounds (exhausted=%t)",
		len(report.Findings), report.Rounds, report.Exhausted)
	return report, nil
}

// formulate asks the model to decompose the question. Any failure
// falls back to searching with the raw question.
func (s *ResearchService) formulate(ctx context.Context, query string) []string {
	if s.llm == nil {
		return []string{query}
	}

	response, err := s.llm.Generate(ctx, fmt.Sprintf(formulatePrompt, s.maxSubQueries, query), driven.GenerateOptions{
		MaxTokens:   200,
		Temperature: 0.0,
	})
	if err != nil {
		logger.Warn("Research: formulation failed, using raw question: %v", err)
		return []string{query}
	}

	var queries []string
	if err := json.Unmarshal([]byte(extractJSON(response, '[', ']')), &queries); err != nil {
		logger.Warn("Research: unparsable formulation, using raw question: %v", err)
		return []string{query}
	}

	out := make([]string, 0, s.maxSubQueries)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == s.maxSubQueries {
			break
		}
	}
	if len(out) == 0 {
		return []string{query}
	}
	return out
}

// retrieveAll runs the sub-query retrievals concurrently and merges
// results, deduplicated by chunk ID in sub-query order.
func (s *ResearchService) retrieveAll(ctx context.Context, subQueries []string) ([]domain.RetrievalCandidate, error) {
	results := make([][]domain.RetrievalCandidate, len(subQueries))
	errs := make([]error, len(subQueries))

	var wg sync.WaitGroup
	for i, q := range subQueries {
		i, q := i, q
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.retriever.Retrieve(ctx, q, s.topK)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var merged []domain.RetrievalCandidate
	seen := make(map[string]bool)
	for _, list := range results {
		for _, c := range list {
			if seen[c.ChunkID] {
				continue
			}
			seen[c.ChunkID] = true
			merged = append(merged, c)
		}
	}
	return merged, nil
}

// evaluate extracts supported claims from the candidates. On model
// failure the candidates themselves become the findings, which keeps
// the pipeline answering when only the generative model is flaky.
func (s *ResearchService) evaluate(ctx context.Context, query string, candidates []domain.RetrievalCandidate) ([]domain.Finding, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if s.llm == nil {
		return candidatesToFindings(candidates), true
	}

	prompt := fmt.Sprintf(evaluatePrompt, query, formatEvidence(candidates))
	response, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   1000,
		Temperature: 0.0,
	})
	if err != nil {
		logger.Warn("Research: evaluation failed, using candidates directly: %v", err)
		return candidatesToFindings(candidates), true
	}

	var eval evaluation
	if err := json.Unmarshal([]byte(extractJSON(response, '{', '}')), &eval); err != nil {
		logger.Warn("Research: unparsable evaluation, using candidates directly: %v", err)
		return candidatesToFindings(candidates), true
	}

	var findings []domain.Finding
	for _, claim := range eval.Claims {
		idx := claim.Source - 1
		if idx < 0 || idx >= len(candidates) {
			logger.Warn("Research: claim cites evidence %d outside range, dropped", claim.Source)
			continue
		}
		c := candidates[idx]
		findings = append(findings, domain.Finding{
			Claim:        strings.TrimSpace(claim.Claim),
			ChunkID:      c.ChunkID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Position:     c.Position,
			Excerpt:      c.Content,
		})
	}

	return findings, eval.Sufficient
}

// reformulate asks the model for a fresh query; failures fall back to
// the original question.
func (s *ResearchService) reformulate(ctx context.Context, query string, asked []string) string {
	if s.llm == nil {
		return query
	}

	prompt := fmt.Sprintf(reformulatePrompt, query, strings.Join(asked, "; "))
	response, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   100,
		Temperature: 0.3,
	})
	if err != nil {
		logger.Warn("Research: reformulation failed, reusing question: %v", err)
		return query
	}

	response = strings.TrimSpace(strings.Trim(strings.TrimSpace(response), `"`))
	if response == "" {
		return query
	}
	return response
}

// candidatesToFindings converts retrieval candidates directly into
// findings. Used by the simple answer mode and as the degraded
// evaluation path.
func candidatesToFindings(candidates []domain.RetrievalCandidate) []domain.Finding {
	findings := make([]domain.Finding, len(candidates))
	for i, c := range candidates {
		findings[i] = domain.Finding{
			Claim:        c.Content,
			ChunkID:      c.ChunkID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Position:     c.Position,
			Excerpt:      c.Content,
		}
	}
	return findings
}

// formatEvidence renders candidates as numbered blocks for prompting.
func formatEvidence(candidates []domain.RetrievalCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] (%s)\n", i+1, c.DocumentName)
		if c.Context != "" {
			b.WriteString(c.Context)
			b.WriteString("\n")
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// extractJSON returns the outermost open..closing region of s, which
// tolerates models that wrap JSON in prose or code fences.
func extractJSON(s string, open, closing byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
