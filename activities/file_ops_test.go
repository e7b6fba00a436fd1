package activities

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/filesaga"
)

func newTestActivities(t *testing.T) *FileActivities {
	t.Helper()
	acts, err := New(t.TempDir(), "http://localhost:0", nil)
	require.NoError(t, err)
	return acts
}

func writeInput(t *testing.T, acts *FileActivities, name, content string) string {
	t.Helper()
	path := filepath.Join(acts.BasePath(), "input", name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runWithDownload(t *testing.T, path string) *filesaga.RunContext {
	t.Helper()
	rc, err := filesaga.NewRunContext("wf-1",
		filesaga.SagaInput{FileURL: "http://example.com/f", Filename: filepath.Base(path)},
		filesaga.StageResult{Stage: StageDownload, Output: DownloadResult{Success: true, FilePath: path}},
	)
	require.NoError(t, err)
	return rc
}

func TestValidateAccepts(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": 1}`)

	out, err := acts.Validate(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)

	result := out.(ValidationResult)
	assert.True(t, result.Valid)
	assert.Equal(t, ".json", result.FileType)
	assert.Equal(t, int64(9), result.FileSize)
}

func TestValidateFailuresAreTerminal(t *testing.T) {
	acts := newTestActivities(t)

	// Missing file.
	_, err := acts.Validate(context.Background(),
		runWithDownload(t, filepath.Join(acts.BasePath(), "input", "missing.json")))
	require.Error(t, err)
	assert.True(t, filesaga.IsTerminal(err))

	// Empty file.
	empty := writeInput(t, acts, "empty.json", "")
	_, err = acts.Validate(context.Background(), runWithDownload(t, empty))
	require.Error(t, err)
	assert.True(t, filesaga.IsTerminal(err))

	// Unsupported extension.
	exe := writeInput(t, acts, "data.exe", "MZ")
	_, err = acts.Validate(context.Background(), runWithDownload(t, exe))
	require.Error(t, err)
	assert.True(t, filesaga.IsTerminal(err))
	assert.Contains(t, err.Error(), ".exe")
}

func TestParseJSONArray(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `[{"id": 1}, {"id": 2}]`)

	out, err := acts.Parse(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)

	result := out.(ParseResult)
	assert.Equal(t, "json", result.FileType)
	assert.Equal(t, 2, result.RecordsCount)
}

func TestParseJSONObjectBecomesSingleRecord(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": 1}`)

	out, err := acts.Parse(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)
	assert.Equal(t, 1, out.(ParseResult).RecordsCount)
}

func TestParseInvalidJSONIsTerminal(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": `)

	_, err := acts.Parse(context.Background(), runWithDownload(t, path))
	require.Error(t, err)
	assert.True(t, filesaga.IsTerminal(err))
}

func TestParseCSV(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.csv", "id,name\n1,alpha\n2,beta\n")

	out, err := acts.Parse(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)

	result := out.(ParseResult)
	assert.Equal(t, "csv", result.FileType)
	assert.Equal(t, 3, result.RecordsCount, "the header row is a record too")
}

func TestParseTextLines(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.txt", "one\ntwo")

	out, err := acts.Parse(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)

	result := out.(ParseResult)
	assert.Equal(t, "text", result.FileType)
	assert.Equal(t, 2, result.RecordsCount)
}

func TestProcessKeepsJSONIDs(t *testing.T) {
	acts := newTestActivities(t)
	rc, err := filesaga.NewRunContext("wf-1", filesaga.SagaInput{FileURL: "u", Filename: "f"},
		filesaga.StageResult{Stage: StageParse, Output: ParseResult{
			Success:  true,
			FileType: "json",
			Records: []any{
				map[string]any{"id": float64(7), "name": "alpha"},
				map[string]any{"name": "beta"},
				"not an object",
			},
		}},
	)
	require.NoError(t, err)

	out, err := acts.Process(context.Background(), rc)
	require.NoError(t, err)

	result := out.(ProcessResult)
	require.Equal(t, 2, result.ProcessedCount, "non-object JSON records are skipped")
	assert.Equal(t, "7", result.Records[0].ID)
	assert.Equal(t, "gen_1", result.Records[1].ID)
	assert.Equal(t, "processed", result.Records[0].Status)
}

func TestProcessPositionalIDsForText(t *testing.T) {
	acts := newTestActivities(t)
	rc, err := filesaga.NewRunContext("wf-1", filesaga.SagaInput{FileURL: "u", Filename: "f"},
		filesaga.StageResult{Stage: StageParse, Output: ParseResult{
			Success: true, FileType: "text", Records: []any{"one", "two"},
		}},
	)
	require.NoError(t, err)

	out, err := acts.Process(context.Background(), rc)
	require.NoError(t, err)

	result := out.(ProcessResult)
	require.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, "record_0", result.Records[0].ID)
	assert.Equal(t, "record_1", result.Records[1].ID)
}

func TestSaveWritesNamespacedFile(t *testing.T) {
	acts := newTestActivities(t)
	rc, err := filesaga.NewRunContext("wf-1", filesaga.SagaInput{FileURL: "u", Filename: "f"},
		filesaga.StageResult{Stage: StageProcess, Output: ProcessResult{
			Success: true, ProcessedCount: 1,
			Records: []ProcessedRecord{{ID: "r1", Status: "processed"}},
		}},
	)
	require.NoError(t, err)

	out, err := acts.SaveWith("processed_")(context.Background(), rc)
	require.NoError(t, err)

	result := out.(SaveResult)
	assert.Equal(t, filepath.Join(acts.BasePath(), "processed", "processed_wf-1.json"), result.OutputPath)
	assert.Equal(t, 1, result.RecordsSaved)

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"r1"`)
}

func TestValidateResultRejectsEmpty(t *testing.T) {
	acts := newTestActivities(t)
	rc, err := filesaga.NewRunContext("wf-1", filesaga.SagaInput{FileURL: "u", Filename: "f"},
		filesaga.StageResult{Stage: StageProcess, Output: ProcessResult{Success: true, ProcessedCount: 0}},
	)
	require.NoError(t, err)

	_, err = acts.ValidateResult(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, filesaga.IsTerminal(err), "zero records cannot be fixed by retrying")
}

func TestBackupCopiesFile(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": 1}`)

	out, err := acts.Backup(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)

	result := out.(BackupResult)
	assert.Equal(t, path, result.OriginalPath)
	assert.Equal(t, int64(9), result.BackupSize)

	data, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, `{"id": 1}`, string(data))
}

func TestCleanupRemovesInput(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": 1}`)

	out, err := acts.Cleanup(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)

	result := out.(CleanupResult)
	assert.Equal(t, 1, result.TotalCleaned)
	assert.NoFileExists(t, path)

	// A second pass over the same (now missing) file still counts as cleaned.
	out, err = acts.Cleanup(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)
	assert.Equal(t, 1, out.(CleanupResult).TotalCleaned)
}

func TestCleanupFileIdempotent(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": 1}`)

	require.NoError(t, acts.CleanupFile(context.Background(), path))
	assert.NoFileExists(t, path)

	err := acts.CleanupFile(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, filesaga.ErrNotFound, "the second removal reports not-found for the unwind to swallow")
}

func TestRestoreFromBackup(t *testing.T) {
	acts := newTestActivities(t)
	path := writeInput(t, acts, "data.json", `{"id": 1}`)

	out, err := acts.Backup(context.Background(), runWithDownload(t, path))
	require.NoError(t, err)
	backup := out.(BackupResult).BackupPath

	require.NoError(t, os.Remove(path))
	require.NoError(t, acts.RestoreFromBackup(context.Background(), backup, path))
	assert.FileExists(t, path)

	err = acts.RestoreFromBackup(context.Background(), backup+".missing", path)
	assert.ErrorIs(t, err, filesaga.ErrNotFound)
}
