// Package activities implements the I/O adapters invoked by the
// file-ingestion stages: HTTP download and upload, filesystem validation,
// backup, parsing, and cleanup. Each activity reads what it needs from
// earlier stage outputs via the run context and returns its own typed result.
package activities

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stage names for the file-ingestion pipeline. Activities look each other's
// outputs up by these, so they live here rather than in the wiring package.
const (
	StageDownload       = "download"
	StageValidate       = "validate"
	StageBackup         = "backup"
	StageParse          = "parse"
	StageProcess        = "process"
	StageSave           = "save"
	StageUpload         = "upload"
	StageValidateResult = "validate_result"
	StageNotify         = "notify"
	StageCleanup        = "cleanup"
)

// FileActivities bundles the pipeline's side-effecting operations around a
// working directory and the external upload service. One instance serves any
// number of concurrent runs: output filenames are namespaced by workflow id.
type FileActivities struct {
	basePath   string
	serviceURL string
	client     *http.Client
	log        *slog.Logger
}

// New creates the activity set rooted at basePath, creating the working
// directories if needed. serviceURL is the base endpoint of the external
// upload service; upload, rollback, and webhook URLs all derive from it.
func New(basePath, serviceURL string, log *slog.Logger) (*FileActivities, error) {
	return NewWithClient(basePath, serviceURL, &http.Client{}, log)
}

// NewWithClient is New with a caller-supplied HTTP client, for configuring
// transport-level timeouts.
func NewWithClient(basePath, serviceURL string, client *http.Client, log *slog.Logger) (*FileActivities, error) {
	if log == nil {
		log = slog.Default()
	}

	for _, dir := range []string{"input", "processed", "backup", "logs"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &FileActivities{
		basePath:   basePath,
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     client,
		log:        log,
	}, nil
}

// BasePath returns the working directory root.
func (a *FileActivities) BasePath() string { return a.basePath }

// LogDir returns the directory for processing event logs.
func (a *FileActivities) LogDir() string { return filepath.Join(a.basePath, "logs") }

// uploadURL is where files are POSTed.
func (a *FileActivities) uploadURL() string { return a.serviceURL + "/upload" }

// rollbackURL addresses a registered upload for deletion. It derives from
// the same service endpoint as the forward upload.
func (a *FileActivities) rollbackURL(uploadID string) string {
	return a.serviceURL + "/rollback/" + uploadID
}

// webhookURL receives completion notifications.
func (a *FileActivities) webhookURL() string { return a.serviceURL + "/webhook" }

// inputPath namespaces the downloaded file per run so concurrent runs never
// collide in the shared input directory.
func (a *FileActivities) inputPath(workflowID, filename string) string {
	return filepath.Join(a.basePath, "input", workflowID+"_"+filepath.Base(filename))
}

func (a *FileActivities) processedPath(name string) string {
	return filepath.Join(a.basePath, "processed", name)
}

func (a *FileActivities) backupPath(original string) string {
	name := filepath.Base(original) + "_" + time.Now().Format("20060102_150405")
	return filepath.Join(a.basePath, "backup", name)
}
