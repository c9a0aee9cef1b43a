// Package chunker provides a deterministic sentence-aware chunking processor.
package chunker

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
)

// DefaultChunkTokens is the default token budget per chunk.
const DefaultChunkTokens = 400

// DefaultOverlapTokens is the default token overlap between adjacent chunks.
const DefaultOverlapTokens = 80

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits document content into token-bounded chunks.
//
// Chunks never split inside a sentence unless a single sentence exceeds
// the whole token budget. Each chunk is an exact byte span of the
// source text, and adjacent chunks share a trailing-sentence overlap,
// so concatenating chunks minus the overlap reconstructs the source
// exactly. Chunk IDs are derived from (document ID, position), making
// re-chunking byte-for-byte reproducible.
type Processor struct {
	chunkTokens   int
	overlapTokens int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkTokens sets the token budget per chunk.
func WithChunkTokens(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.chunkTokens = n
		}
	}
}

// WithOverlapTokens sets the token overlap between adjacent chunks.
func WithOverlapTokens(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.overlapTokens = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkTokens:   DefaultChunkTokens,
		overlapTokens: DefaultOverlapTokens,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Overlap must leave room for new content in every chunk.
	if p.overlapTokens >= p.chunkTokens {
		p.overlapTokens = p.chunkTokens / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// span is a half-open byte range within the document content.
type span struct {
	start  int
	end    int
	tokens int
}

// Process splits the document content into chunks.
func (p *Processor) Process(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc.Content == "" {
		return nil, nil
	}

	spans := sentenceSpans(doc.Content)
	spans = splitOversized(doc.Content, spans, p.chunkTokens)

	var chunks []domain.Chunk
	position := 0
	i := 0

	for i < len(spans) {
		// Greedily take whole sentences up to the token budget.
		j := i
		tokens := 0
		for j < len(spans) {
			if tokens > 0 && tokens+spans[j].tokens > p.chunkTokens {
				break
			}
			tokens += spans[j].tokens
			j++
		}

		content := doc.Content[spans[i].start:spans[j-1].end]
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.ID, position),
			DocumentID: doc.ID,
			Position:   position,
			Content:    content,
			TokenCount: tokens,
		})
		position++

		if j >= len(spans) {
			break
		}

		// Carry trailing sentences of this chunk into the next, within
		// the overlap budget. At least one new span must be consumed
		// each iteration.
		back := 0
		overlap := 0
		for back < j-i-1 && overlap+spans[j-1-back].tokens <= p.overlapTokens {
			overlap += spans[j-1-back].tokens
			back++
		}
		i = j - back
	}

	for idx := range chunks {
		if idx > 0 {
			chunks[idx].PrevID = chunks[idx-1].ID
		}
		if idx < len(chunks)-1 {
			chunks[idx].NextID = chunks[idx+1].ID
		}
	}

	return chunks, nil
}

// sentenceSpans splits content into sentence byte ranges. Each span
// includes its trailing whitespace so that spans tile the content
// exactly with no gaps.
func sentenceSpans(content string) []span {
	var spans []span
	start := 0
	i := 0

	for i < len(content) {
		r, size := utf8.DecodeRuneInString(content[i:])
		i += size

		if !isSentenceEnd(r) {
			continue
		}

		// Absorb closing quotes/brackets and trailing whitespace.
		for i < len(content) {
			next, nsize := utf8.DecodeRuneInString(content[i:])
			if next == '"' || next == '\'' || next == ')' || next == ']' || unicode.IsSpace(next) {
				i += nsize
				continue
			}
			break
		}

		spans = append(spans, makeSpan(content, start, i))
		start = i
	}

	if start < len(content) {
		spans = append(spans, makeSpan(content, start, len(content)))
	}

	return spans
}

// isSentenceEnd checks if a rune is sentence-ending punctuation.
func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' || r == '\n'
}

func makeSpan(content string, start, end int) span {
	return span{
		start:  start,
		end:    end,
		tokens: countTokens(content[start:end]),
	}
}

// countTokens approximates tokens as whitespace-delimited words.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

// splitOversized hard-splits any sentence span whose token count
// exceeds the budget. This is the fallback for content with no usable
// sentence boundaries (tables, minified text).
func splitOversized(content string, spans []span, budget int) []span {
	var out []span
	for _, sp := range spans {
		if sp.tokens <= budget {
			out = append(out, sp)
			continue
		}
		out = append(out, hardSplit(content, sp, budget)...)
	}
	return out
}

// hardSplit cuts a span at word boundaries into sub-spans of at most
// budget tokens each.
func hardSplit(content string, sp span, budget int) []span {
	var out []span
	start := sp.start
	tokens := 0
	inWord := false

	for i := sp.start; i < sp.end; {
		r, size := utf8.DecodeRuneInString(content[i:])
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				tokens++
				if tokens == budget {
					// Include trailing whitespace up to the next word.
					j := i
					for j < sp.end {
						nr, nsize := utf8.DecodeRuneInString(content[j:])
						if !unicode.IsSpace(nr) {
							break
						}
						j += nsize
					}
					out = append(out, makeSpan(content, start, j))
					start = j
					tokens = 0
				}
			}
		} else {
			inWord = true
		}
		i += size
	}

	if start < sp.end {
		out = append(out, makeSpan(content, start, sp.end))
	}
	return out
}
