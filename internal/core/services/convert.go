package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/corpora-labs/corpusqa/internal/core/ports/driven"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
	"github.com/corpora-labs/corpusqa/internal/logger"
)

// Ensure ConvertService implements the interface.
var _ driving.Converter = (*ConvertService)(nil)

// ConvertService normalises raw source files into the plain text plus
// sidecar layout the ingestion pipeline reads. Each file is routed to
// a normaliser by extension; files without one are skipped, and
// per-file failures never abort the run. Output is deterministic per
// input file, so re-running a conversion is idempotent.
type ConvertService struct {
	byExtension map[string]driven.Normaliser
}

// NewConvertService creates a conversion service routing to the given
// normalisers. Later normalisers win when extensions overlap.
func NewConvertService(normalisers ...driven.Normaliser) *ConvertService {
	byExt := make(map[string]driven.Normaliser)
	for _, n := range normalisers {
		for _, ext := range n.SupportedExtensions() {
			byExt[strings.ToLower(ext)] = n
		}
	}
	return &ConvertService{byExtension: byExt}
}

// Convert normalises every supported file under inDir into outDir,
// mirroring the directory structure. Each converted file produces a
// .txt with the normalised content and a .json sidecar carrying title
// and format metadata.
func (s *ConvertService) Convert(ctx context.Context, inDir, outDir string) (*driving.ConvertStatus, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	status := &driving.ConvertStatus{}

	err := filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		normaliser, ok := s.byExtension[strings.ToLower(filepath.Ext(path))]
		if !ok {
			logger.Debug("No normaliser for %s, skipping", path)
			status.FilesSkipped++
			return nil
		}

		if convertErr := s.convertFile(ctx, normaliser, inDir, outDir, path); convertErr != nil {
			logger.Warn("Failed to convert %s: %v", path, convertErr)
			status.FilesFailed++
			return nil
		}

		status.FilesConverted++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return status, nil
}

func (s *ConvertService) convertFile(ctx context.Context, normaliser driven.Normaliser, inDir, outDir, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	doc, err := normaliser.Normalise(ctx, path, raw)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(inDir, path)
	if err != nil {
		return fmt.Errorf("relativise: %w", err)
	}
	base := strings.TrimSuffix(rel, filepath.Ext(rel))
	outPath := filepath.Join(outDir, base+".txt")

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output subdir: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(doc.Content), 0o644); err != nil {
		return fmt.Errorf("write content: %w", err)
	}

	side := sidecar{Title: doc.Name, Format: doc.Format, Meta: stringMetadata(doc.Metadata)}
	raw, err = json.MarshalIndent(side, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, base+".json"), raw, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	return nil
}

// stringMetadata keeps only the string-valued metadata entries, which
// is all the sidecar format carries.
func stringMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
