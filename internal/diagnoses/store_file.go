package diagnoses

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"leafdoc-backend/internal/shared/telemetry"
)

// FileStore persists the history as a single JSON file, the durable slot of
// the diagnosis history.
type FileStore struct {
	path string
}

// NewFileStore constructs a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the history file. A missing or corrupt file degrades to an empty
// history with a logged warning; it never fails the caller.
func (s *FileStore) Load(ctx context.Context) (History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			telemetry.Warn("history.load_failed", map[string]any{"path": s.path, "error": err.Error()})
		}
		return History{}, nil
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		telemetry.Warn("history.corrupt", map[string]any{"path": s.path, "error": err.Error()})
		return History{}, nil
	}
	return h, nil
}

// Save writes the whole history atomically via a temp file rename.
func (s *FileStore) Save(ctx context.Context, h History) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

var _ HistoryStore = (*FileStore)(nil)
