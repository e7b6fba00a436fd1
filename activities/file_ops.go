package activities

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fortressi/filesaga"
)

var validExtensions = map[string]bool{
	".json": true,
	".csv":  true,
	".txt":  true,
	".xml":  true,
}

// Validate checks that the downloaded file exists, is non-empty, and has a
// supported extension. All of its failure modes are terminal: retrying
// cannot fix a bad file.
func (a *FileActivities) Validate(ctx context.Context, run *filesaga.RunContext) (any, error) {
	download, ok := filesaga.LookupOutput[DownloadResult](run, StageDownload)
	if !ok {
		return nil, filesaga.Terminalf("validate: no download result recorded")
	}

	info, err := os.Stat(download.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, filesaga.Terminalf("file does not exist: %s", download.FilePath)
		}
		return nil, filesaga.Transient(err)
	}
	if info.Size() == 0 {
		return nil, filesaga.Terminalf("file is empty: %s", download.FilePath)
	}

	ext := strings.ToLower(filepath.Ext(download.FilePath))
	if !validExtensions[ext] {
		return nil, filesaga.Terminalf("unsupported file format: %s", ext)
	}

	return ValidationResult{
		Success:  true,
		FileSize: info.Size(),
		FileType: ext,
		Valid:    true,
	}, nil
}

// Backup copies the downloaded file into the backup directory with a
// timestamp suffix.
func (a *FileActivities) Backup(ctx context.Context, run *filesaga.RunContext) (any, error) {
	download, ok := filesaga.LookupOutput[DownloadResult](run, StageDownload)
	if !ok {
		return nil, filesaga.Terminalf("backup: no download result recorded")
	}

	backupPath := a.backupPath(download.FilePath)
	size, err := copyFile(download.FilePath, backupPath)
	if err != nil {
		return nil, filesaga.Transient(fmt.Errorf("backup failed: %w", err))
	}

	a.log.Info("file backed up", "workflow_id", run.WorkflowID, "backup_path", backupPath)

	return BackupResult{
		Success:      true,
		OriginalPath: download.FilePath,
		BackupPath:   backupPath,
		BackupSize:   size,
	}, nil
}

// Parse decodes the downloaded file by extension: a JSON document (array
// elements become records), CSV rows, or plain-text lines.
func (a *FileActivities) Parse(ctx context.Context, run *filesaga.RunContext) (any, error) {
	download, ok := filesaga.LookupOutput[DownloadResult](run, StageDownload)
	if !ok {
		return nil, filesaga.Terminalf("parse: no download result recorded")
	}

	ext := strings.ToLower(filepath.Ext(download.FilePath))
	data, err := os.ReadFile(download.FilePath)
	if err != nil {
		return nil, filesaga.Transient(err)
	}

	switch ext {
	case ".json":
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, filesaga.Terminalf("invalid JSON: %v", err)
		}
		records, isArray := decoded.([]any)
		if !isArray {
			records = []any{decoded}
		}
		return ParseResult{
			Success:      true,
			RecordsCount: len(records),
			Records:      records,
			FileType:     "json",
		}, nil

	case ".csv":
		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			return nil, filesaga.Terminalf("invalid CSV: %v", err)
		}
		records := make([]any, 0, len(rows))
		for _, row := range rows {
			records = append(records, row)
		}
		return ParseResult{
			Success:      true,
			RecordsCount: len(records),
			Records:      records,
			FileType:     "csv",
		}, nil

	default:
		lines := strings.Split(string(data), "\n")
		records := make([]any, 0, len(lines))
		for _, line := range lines {
			records = append(records, line)
		}
		return ParseResult{
			Success:      true,
			RecordsCount: len(records),
			Records:      records,
			FileType:     "text",
		}, nil
	}
}

// Process wraps each parsed record with a generated identity and processing
// metadata. JSON object records keep their own "id" field when present;
// everything else gets a positional one.
func (a *FileActivities) Process(ctx context.Context, run *filesaga.RunContext) (any, error) {
	parsed, ok := filesaga.LookupOutput[ParseResult](run, StageParse)
	if !ok {
		return nil, filesaga.Terminalf("process: no parse result recorded")
	}

	now := run.Now()
	processed := make([]ProcessedRecord, 0, len(parsed.Records))

	for i, record := range parsed.Records {
		id := fmt.Sprintf("record_%d", i)
		if parsed.FileType == "json" {
			obj, isObject := record.(map[string]any)
			if !isObject {
				continue
			}
			if v, hasID := obj["id"]; hasID {
				id = fmt.Sprintf("%v", v)
			} else {
				id = fmt.Sprintf("gen_%d", len(processed))
			}
		}
		processed = append(processed, ProcessedRecord{
			ID:          id,
			ProcessedAt: now,
			Data:        record,
			Status:      "processed",
		})
	}

	return ProcessResult{
		Success:        true,
		ProcessedCount: len(processed),
		Records:        processed,
	}, nil
}

// SaveWith returns the persist activity: it writes the processed records as
// pretty JSON under the processed directory, naming the file with the given
// prefix and the workflow id so concurrent runs never collide.
func (a *FileActivities) SaveWith(prefix string) filesaga.Activity {
	return func(ctx context.Context, run *filesaga.RunContext) (any, error) {
		processed, ok := filesaga.LookupOutput[ProcessResult](run, StageProcess)
		if !ok {
			return nil, filesaga.Terminalf("save: no process result recorded")
		}

		outputPath := a.processedPath(prefix + run.WorkflowID + ".json")
		data, err := json.MarshalIndent(processed, "", "  ")
		if err != nil {
			return nil, filesaga.Terminalf("cannot marshal processed data: %v", err)
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return nil, filesaga.Transient(err)
		}

		a.log.Info("processed data saved", "workflow_id", run.WorkflowID,
			"output_path", outputPath, "records", processed.ProcessedCount)

		return SaveResult{
			Success:      true,
			OutputPath:   outputPath,
			OutputSize:   int64(len(data)),
			RecordsSaved: processed.ProcessedCount,
		}, nil
	}
}

// ValidateResult checks that processing actually produced records. Zero
// records is a terminal failure.
func (a *FileActivities) ValidateResult(ctx context.Context, run *filesaga.RunContext) (any, error) {
	processed, ok := filesaga.LookupOutput[ProcessResult](run, StageProcess)
	if !ok {
		return nil, filesaga.Terminalf("validate_result: no process result recorded")
	}
	if !processed.Success {
		return nil, filesaga.Terminalf("processing was not successful")
	}
	if processed.ProcessedCount == 0 {
		return nil, filesaga.Terminalf("no records were processed")
	}

	return ResultValidation{
		Success:          true,
		ValidationPassed: true,
		RecordsValidated: processed.ProcessedCount,
		ValidatedAt:      run.Now(),
	}, nil
}

// Cleanup removes the run's temporary input file. A file that is already
// gone counts as cleaned.
func (a *FileActivities) Cleanup(ctx context.Context, run *filesaga.RunContext) (any, error) {
	download, ok := filesaga.LookupOutput[DownloadResult](run, StageDownload)
	if !ok {
		return nil, filesaga.Terminalf("cleanup: no download result recorded")
	}

	result := CleanupResult{Success: true}
	for _, path := range []string{download.FilePath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result.FailedFiles = append(result.FailedFiles, path)
			continue
		}
		result.CleanedFiles = append(result.CleanedFiles, path)
	}
	result.TotalCleaned = len(result.CleanedFiles)

	return result, nil
}

// CleanupFile is the undo function for files created by forward stages.
// Removing a file that no longer exists reports filesaga.ErrNotFound, which
// the unwind treats as success.
func (a *FileActivities) CleanupFile(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, filesaga.ErrNotFound)
		}
		return err
	}
	a.log.Info("temp file removed", "path", path)
	return nil
}

// RestoreFromBackup copies a backup back over the original path. It is an
// operator utility for recovering after a partially failed unwind.
func (a *FileActivities) RestoreFromBackup(ctx context.Context, backupPath, originalPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup %s: %w", backupPath, filesaga.ErrNotFound)
		}
		return err
	}
	if _, err := copyFile(backupPath, originalPath); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Close()
}
