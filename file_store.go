package filesaga

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore provides a file-based implementation of Store that persists run
// state as JSON files on disk. Good enough for a single host; anything more
// belongs to a real durable-execution substrate.
type FileStore struct {
	basePath string
	mu       sync.Mutex // Protects file operations
}

// NewFileStore creates a file-based store that saves run state to the
// specified directory.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileStore{
		basePath: basePath,
	}, nil
}

// Save persists the run state to a JSON file.
func (f *FileStore) Save(ctx context.Context, workflowID string, state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	filename := f.filename(workflowID)
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// Load retrieves the run state from a JSON file.
func (f *FileStore) Load(ctx context.Context, workflowID string) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	filename := f.filename(workflowID)
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", workflowID)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// Delete removes the run state file.
func (f *FileStore) Delete(ctx context.Context, workflowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	filename := f.filename(workflowID)
	if err := os.Remove(filename); err != nil {
		if os.IsNotExist(err) {
			// Already deleted, not an error
			return nil
		}
		return fmt.Errorf("failed to delete state file: %w", err)
	}

	return nil
}

// filename returns the full path for a run's state file.
func (f *FileStore) filename(workflowID string) string {
	return filepath.Join(f.basePath, workflowID+".json")
}
