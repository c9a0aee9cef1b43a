package domain

// AnswerMode selects the orchestration depth for a query.
type AnswerMode string

const (
	// ModeFull runs the two-stage research then synthesis pipeline.
	ModeFull AnswerMode = "full"

	// ModeSimple answers from a single retrieval pass. Citations remain
	// mandatory; only the research agent is skipped.
	ModeSimple AnswerMode = "simple"
)

// Finding is one supported claim extracted by the research agent,
// attached to the chunk that supports it.
type Finding struct {
	// Claim is the extracted statement.
	Claim string

	// ChunkID identifies the supporting chunk.
	ChunkID string

	// DocumentID identifies the supporting chunk's document.
	DocumentID string

	// DocumentName is the human-readable document name.
	DocumentName string

	// Position is the supporting chunk's position within its document.
	Position int

	// Excerpt is the supporting chunk text, carried for synthesis.
	Excerpt string
}

// FindingsReport is the research agent's terminal output for one run.
// It is owned by a single orchestration run and discarded at its end.
type FindingsReport struct {
	// Query is the original user question.
	Query string

	// Findings is the ordered list of claims with supporting references.
	// Empty when no relevant evidence was found; that is a legitimate
	// synthesis input, not a failure.
	Findings []Finding

	// Rounds is how many retrieval rounds were executed.
	Rounds int

	// Exhausted is true when the round cap was reached before the
	// evidence was judged sufficient.
	Exhausted bool
}

// HasFinding reports whether the given chunk ID appears in the report.
func (r *FindingsReport) HasFinding(chunkID string) bool {
	for _, f := range r.Findings {
		if f.ChunkID == chunkID {
			return true
		}
	}
	return false
}

// SourceRef identifies one cited source in an answer.
type SourceRef struct {
	// DocumentID identifies the cited document.
	DocumentID string

	// DocumentName is the human-readable document name.
	DocumentName string

	// ChunkID identifies the cited chunk.
	ChunkID string

	// Position is the cited chunk's ordinal position.
	Position int
}

// AnswerResult is the final output of one orchestration run.
// It is returned to the caller and not persisted beyond the request.
type AnswerResult struct {
	// Answer is the final natural-language answer text.
	Answer string

	// Sources is the ordered list of cited sources.
	Sources []SourceRef

	// Mode records which orchestration mode produced the answer.
	Mode AnswerMode

	// Rounds is the number of research rounds that ran (0 in simple mode).
	Rounds int

	// Grounded is false only for the explicit not-found answer, where
	// there are no sources to cite.
	Grounded bool
}

// NotFoundAnswer is the fixed response used when the corpus contains
// no relevant evidence. Returning it explicitly, rather than letting
// the model improvise, is what keeps empty-evidence behaviour honest.
const NotFoundAnswer = "I could not find an answer to this question in the provided documents."
