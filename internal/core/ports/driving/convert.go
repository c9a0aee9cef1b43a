package driving

import "context"

// ConvertStatus summarises a conversion run.
type ConvertStatus struct {
	// FilesConverted is how many files were normalised and written.
	FilesConverted int

	// FilesSkipped is how many files had no matching normaliser.
	FilesSkipped int

	// FilesFailed is how many files failed to normalise. Failures are
	// isolated per file and never abort the run.
	FilesFailed int
}

// Converter turns raw source files into normalised documents on disk,
// ready for ingestion.
type Converter interface {
	// Convert normalises every supported file under inDir into outDir.
	Convert(ctx context.Context, inDir, outDir string) (*ConvertStatus, error)
}
