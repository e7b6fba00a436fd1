package activities

import "time"

// DownloadResult is the output of the download stage.
type DownloadResult struct {
	Success   bool      `json:"success"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidationResult is the output of the format-validation stage.
type ValidationResult struct {
	Success  bool   `json:"success"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	Valid    bool   `json:"valid"`
}

// BackupResult is the output of the backup stage.
type BackupResult struct {
	Success      bool   `json:"success"`
	OriginalPath string `json:"original_path"`
	BackupPath   string `json:"backup_path"`
	BackupSize   int64  `json:"backup_size"`
}

// ParseResult is the output of the parse stage. Records holds the decoded
// content: JSON array elements, CSV rows, or text lines depending on
// FileType.
type ParseResult struct {
	Success      bool   `json:"success"`
	RecordsCount int    `json:"records_count"`
	Records      []any  `json:"parsed_data"`
	FileType     string `json:"file_type"`
}

// ProcessedRecord is one record wrapped by the transform stage.
type ProcessedRecord struct {
	ID          string    `json:"id"`
	ProcessedAt time.Time `json:"processed_at"`
	Data        any       `json:"data"`
	Status      string    `json:"status"`
}

// ProcessResult is the output of the transform stage.
type ProcessResult struct {
	Success        bool              `json:"success"`
	ProcessedCount int               `json:"processed_count"`
	Records        []ProcessedRecord `json:"processed_records"`
}

// SaveResult is the output of the persist stage.
type SaveResult struct {
	Success      bool   `json:"success"`
	OutputPath   string `json:"output_path"`
	OutputSize   int64  `json:"output_size"`
	RecordsSaved int    `json:"records_saved"`
}

// UploadResult is the output of the upload stage.
type UploadResult struct {
	Success    bool      `json:"success"`
	UploadID   string    `json:"upload_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ResultValidation is the output of the result-validation stage.
type ResultValidation struct {
	Success          bool      `json:"success"`
	ValidationPassed bool      `json:"validation_passed"`
	RecordsValidated int       `json:"records_validated"`
	ValidatedAt      time.Time `json:"validation_timestamp"`
}

// NotifyResult is the output of the notification stage.
type NotifyResult struct {
	Success          bool `json:"success"`
	NotificationSent bool `json:"notification_sent"`
	ResponseStatus   int  `json:"response_status"`
}

// CleanupResult is the output of the temp-input cleanup stage.
type CleanupResult struct {
	Success      bool     `json:"success"`
	CleanedFiles []string `json:"cleaned_files"`
	FailedFiles  []string `json:"failed_files"`
	TotalCleaned int      `json:"total_cleaned"`
}
