// Package plaintext normalises plain text files. It is the trivial
// normaliser: the raw bytes already are the content.
package plaintext

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".txt", ".text"}
}

// Normalise converts raw bytes to a normalised document. The content
// is taken verbatim apart from trimming surrounding whitespace.
func (n *Normaliser) Normalise(_ context.Context, path string, raw []byte) (*domain.Document, error) {
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, fmt.Errorf("%w: %s has no extractable text", domain.ErrInvalidInput, filepath.Base(path))
	}

	return &domain.Document{
		Name:    titleFromPath(path),
		Content: content,
		Format:  "txt",
		Metadata: map[string]any{
			"extension": filepath.Ext(path),
		},
	}, nil
}

// titleFromPath derives a human-readable title from a file path.
func titleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
