package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fortressi/filesaga"
)

// Download fetches the input file from the run's URL into the input
// directory. Network failures and non-2xx statuses are transient; HTTP 4xx
// means the source will never produce the file, which is terminal.
func (a *FileActivities) Download(ctx context.Context, run *filesaga.RunContext) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, run.Input.FileURL, nil)
	if err != nil {
		return nil, filesaga.Terminalf("bad download URL %q: %v", run.Input.FileURL, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, filesaga.Transient(fmt.Errorf("download failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, filesaga.Terminalf("download failed: status %d", resp.StatusCode)
		}
		return nil, filesaga.Transientf("download failed: status %d", resp.StatusCode)
	}

	filePath := a.inputPath(run.WorkflowID, run.Input.Filename)
	out, err := os.Create(filePath)
	if err != nil {
		return nil, filesaga.Transient(err)
	}
	defer out.Close()

	size, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(filePath)
		return nil, filesaga.Transient(fmt.Errorf("download interrupted: %w", err))
	}
	if err := out.Close(); err != nil {
		return nil, filesaga.Transient(err)
	}

	a.log.Info("file downloaded", "workflow_id", run.WorkflowID,
		"file_path", filePath, "size", size)

	return DownloadResult{
		Success:   true,
		FilePath:  filePath,
		Size:      size,
		Timestamp: run.Now(),
	}, nil
}

// Upload sends the saved output file to the external service as a multipart
// POST and returns the service's upload id, which the rollback compensation
// targets.
func (a *FileActivities) Upload(ctx context.Context, run *filesaga.RunContext) (any, error) {
	saved, ok := filesaga.LookupOutput[SaveResult](run, StageSave)
	if !ok {
		return nil, filesaga.Terminalf("upload: no save result recorded")
	}

	data, err := os.ReadFile(saved.OutputPath)
	if err != nil {
		return nil, filesaga.Transient(err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(saved.OutputPath))
	if err != nil {
		return nil, filesaga.Transient(err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, filesaga.Transient(err)
	}
	if err := writer.Close(); err != nil {
		return nil, filesaga.Transient(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL(), &body)
	if err != nil {
		return nil, filesaga.Terminalf("bad upload URL: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, filesaga.Transient(fmt.Errorf("upload failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, filesaga.Transientf("upload failed: status %d", resp.StatusCode)
	}

	var serviceResp struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&serviceResp); err != nil {
		return nil, filesaga.Transient(fmt.Errorf("cannot decode upload response: %w", err))
	}
	if serviceResp.UploadID == "" {
		return nil, filesaga.Transientf("upload response missing upload_id")
	}

	a.log.Info("file uploaded", "workflow_id", run.WorkflowID, "upload_id", serviceResp.UploadID)

	return UploadResult{
		Success:    true,
		UploadID:   serviceResp.UploadID,
		UploadedAt: run.Now(),
	}, nil
}

// Notify posts a completion message to the service's webhook.
func (a *FileActivities) Notify(ctx context.Context, run *filesaga.RunContext) (any, error) {
	upload, ok := filesaga.LookupOutput[UploadResult](run, StageUpload)
	if !ok {
		return nil, filesaga.Terminalf("notify: no upload result recorded")
	}

	payload, err := json.Marshal(map[string]any{
		"message":   fmt.Sprintf("File processing completed successfully. Upload ID: %s", upload.UploadID),
		"timestamp": run.Now(),
		"status":    "completed",
	})
	if err != nil {
		return nil, filesaga.Terminalf("cannot marshal notification: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, filesaga.Terminalf("bad webhook URL: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, filesaga.Transient(fmt.Errorf("notification failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, filesaga.Transientf("notification failed: status %d", resp.StatusCode)
	}

	return NotifyResult{
		Success:          true,
		NotificationSent: true,
		ResponseStatus:   resp.StatusCode,
	}, nil
}

// RollbackUpload is the undo function for registered uploads. The rollback
// URL derives from the same service endpoint as the forward upload; a 404
// means the upload is already gone and reports filesaga.ErrNotFound.
func (a *FileActivities) RollbackUpload(ctx context.Context, uploadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.rollbackURL(uploadID), nil)
	if err != nil {
		return fmt.Errorf("bad rollback URL: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		a.log.Info("upload rolled back", "upload_id", uploadID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("upload %s: %w", uploadID, filesaga.ErrNotFound)
	default:
		return fmt.Errorf("rollback failed: status %d", resp.StatusCode)
	}
}
