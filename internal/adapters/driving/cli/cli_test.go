package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-labs/corpusqa/internal/core/domain"
	"github.com/corpora-labs/corpusqa/internal/core/ports/driving"
)

// mockAnswerService scripts the answer pipeline for command tests.
type mockAnswerService struct {
	result    *domain.AnswerResult
	err       error
	lastQuery string
	lastMode  domain.AnswerMode
}

func (m *mockAnswerService) Answer(_ context.Context, query string, _ []domain.AnswerResult, mode domain.AnswerMode) (*domain.AnswerResult, error) {
	m.lastQuery = query
	m.lastMode = mode
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockIngestService struct {
	status  *driving.IngestStatus
	records []domain.IngestionRecord
	err     error
	lastDir string
}

func (m *mockIngestService) IngestDir(_ context.Context, dir string) (*driving.IngestStatus, error) {
	m.lastDir = dir
	return m.status, m.err
}

func (m *mockIngestService) IngestDocument(_ context.Context, _ *domain.Document) error {
	return m.err
}

func (m *mockIngestService) Records(_ context.Context) ([]domain.IngestionRecord, error) {
	return m.records, m.err
}

type mockConvertService struct {
	status *driving.ConvertStatus
	err    error
}

func (m *mockConvertService) Convert(_ context.Context, _, _ string) (*driving.ConvertStatus, error) {
	return m.status, m.err
}

// setupTestServices swaps the wired services for mocks and returns a
// cleanup restoring the previous state.
func setupTestServices() (answer *mockAnswerService, ingest *mockIngestService, convert *mockConvertService, cleanup func()) {
	oldAnswer, oldIngest, oldConvert := answerService, ingestService, convertService

	answer = &mockAnswerService{
		result: &domain.AnswerResult{
			Answer: "Revenue grew 12% [1].",
			Sources: []domain.SourceRef{
				{DocumentName: "Quarterly Report", ChunkID: "chunk-1", Position: 2},
			},
			Grounded: true,
		},
	}
	ingest = &mockIngestService{status: &driving.IngestStatus{DocumentsProcessed: 2, ChunksIndexed: 9}}
	convert = &mockConvertService{status: &driving.ConvertStatus{FilesConverted: 3, FilesSkipped: 1}}

	answerService = answer
	ingestService = ingest
	convertService = convert

	cleanup = func() {
		answerService, ingestService, convertService = oldAnswer, oldIngest, oldConvert
		askSimple = false
		convertIn, convertOut = "", ""
		ingestDirFlag = ""
	}
	return answer, ingest, convert, cleanup
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "corpusqa version")
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestAskCmd_PrintsAnswerAndSources(t *testing.T) {
	answer, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "ask", "How did revenue do?")

	require.NoError(t, err)
	assert.Equal(t, "How did revenue do?", answer.lastQuery)
	assert.Equal(t, domain.ModeFull, answer.lastMode)
	assert.Contains(t, out, "Revenue grew 12%")
	assert.Contains(t, out, "[1] Quarterly Report (chunk 2)")
}

func TestAskCmd_SimpleFlag(t *testing.T) {
	answer, _, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ask", "--simple", "How did revenue do?")

	require.NoError(t, err)
	assert.Equal(t, domain.ModeSimple, answer.lastMode)
}

func TestAskCmd_JoinsArgsIntoQuery(t *testing.T) {
	answer, _, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ask", "how", "did", "revenue", "do")

	require.NoError(t, err)
	assert.Equal(t, "how did revenue do", answer.lastQuery)
}

func TestAskCmd_GroundingViolationPrintsRefusal(t *testing.T) {
	answer, _, _, cleanup := setupTestServices()
	defer cleanup()
	answer.err = &domain.GroundingViolation{ChunkID: "chunk-9"}

	out, err := execute(t, "ask", "How did revenue do?")

	require.NoError(t, err)
	assert.Contains(t, out, "Unable to answer")
}

func TestAskCmd_ErrorPropagates(t *testing.T) {
	answer, _, _, cleanup := setupTestServices()
	defer cleanup()
	answer.err = errors.New("store down")

	_, err := execute(t, "ask", "How did revenue do?")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestConvertCmd_PrintsCounts(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "convert", "--in", "/tmp/raw", "--out", "/tmp/normalised")

	require.NoError(t, err)
	assert.Contains(t, out, "Converted 3 file(s), skipped 1, failed 0")
}

func TestConvertCmd_RequiresFlags(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()
	// Required-flag validation keys off the changed state, which a
	// prior Execute in this process may have set.
	convertCmd.Flags().Lookup("in").Changed = false
	convertCmd.Flags().Lookup("out").Changed = false

	_, err := execute(t, "convert")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestIngestCmd_PrintsCounts(t *testing.T) {
	_, ingest, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "ingest", "--dir", "/tmp/normalised")

	require.NoError(t, err)
	assert.Equal(t, "/tmp/normalised", ingest.lastDir)
	assert.Contains(t, out, "Ingested 2 document(s) (9 chunks), 0 failed")
}

func TestStatusCmd_Empty(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "No documents ingested yet.")
}

func TestStatusCmd_ListsRecords(t *testing.T) {
	_, ingest, _, cleanup := setupTestServices()
	defer cleanup()
	ingest.records = []domain.IngestionRecord{
		{DocumentID: "doc-1", Name: "Quarterly Report", Status: domain.IngestionCompleted, ChunkCount: 4, UpdatedAt: time.Now()},
		{DocumentID: "doc-2", Name: "Broken Doc", Status: domain.IngestionFailed, LastError: "embedding failed", UpdatedAt: time.Now()},
	}

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Quarterly Report")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "embedding failed")
}

func TestServeCmd_Registered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"serve"})

	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Use)
	require.NotNil(t, cmd.Flags().Lookup("port"))
}
