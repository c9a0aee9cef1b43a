package driven

import (
	"context"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
)

// Normaliser converts a raw document into normalised plain text with
// title and format metadata. Documents without extractable text are
// rejected with an error.
type Normaliser interface {
	// SupportedExtensions returns the file extensions this normaliser
	// handles, including the leading dot.
	SupportedExtensions() []string

	// Normalise transforms raw bytes into a normalised document.
	// Only Content, Name, Format and Metadata are populated; identity
	// fields are assigned by the ingestion pipeline.
	Normalise(ctx context.Context, path string, raw []byte) (*domain.Document, error)
}
