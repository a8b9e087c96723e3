package incremental

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"context"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const moduleName = "incremental"

const stateFileSuffix = ".state.json"

// stateDocument is the on-disk form of one incremental state entry.
type stateDocument struct {
	StateKey         string            `json:"state_key"`
	KeyColumn        string            `json:"key_column"`
	ComparisonColumn string            `json:"comparison_column"`
	Watermark        interface{}       `json:"watermark"`
	KeyHashes        map[string]string `json:"key_hashes,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// FileStateStore is a StateStore keeping one JSON document per state key,
// published atomically via a temp file and rename.
type FileStateStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStateStore creates a FileStateStore rooted at baseDir, creating it
// if needed.
func NewFileStateStore(baseDir string) (*FileStateStore, error) {
	if baseDir == "" {
		return nil, exception.NewETLError(moduleName, "state directory cannot be empty", nil, false, false)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to create state directory %q", baseDir), err, false, false)
	}
	return &FileStateStore{baseDir: baseDir}, nil
}

// statePath resolves the file for one state key, rejecting keys that would
// escape the store root.
func (s *FileStateStore) statePath(stateKey string) (string, error) {
	if stateKey == "" {
		return "", exception.NewETLError(moduleName, "state key cannot be empty", nil, false, false)
	}
	path := filepath.Join(s.baseDir, filepath.Clean(stateKey)+stateFileSuffix)
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to resolve state base directory", err, false, false)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to resolve state path", err, false, false)
	}
	if !strings.HasPrefix(absPath, absBase+string(os.PathSeparator)) {
		return "", exception.NewETLErrorf(moduleName, "state key %q escapes the state directory", stateKey)
	}
	return path, nil
}

// Load implements StateStore.
func (s *FileStateStore) Load(ctx context.Context, stateKey string) (*model.IncrementalState, error) {
	path, err := s.statePath(stateKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to read state for %q", stateKey), err, false, false)
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to decode state for %q", stateKey), err, false, false)
	}

	state := &model.IncrementalState{
		StateKey:         doc.StateKey,
		KeyColumn:        doc.KeyColumn,
		ComparisonColumn: doc.ComparisonColumn,
		Watermark:        doc.Watermark,
		KeyHashes:        doc.KeyHashes,
		UpdatedAt:        doc.UpdatedAt,
	}
	return state, nil
}

// Save implements StateStore.
func (s *FileStateStore) Save(ctx context.Context, state *model.IncrementalState) error {
	path, err := s.statePath(state.StateKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := stateDocument{
		StateKey:         state.StateKey,
		KeyColumn:        state.KeyColumn,
		ComparisonColumn: state.ComparisonColumn,
		Watermark:        state.Watermark,
		KeyHashes:        state.KeyHashes,
		UpdatedAt:        state.UpdatedAt.UTC(),
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to serialize state for %q", state.StateKey), err, false, false)
	}

	tmp, err := os.CreateTemp(s.baseDir, ".tmp-state-*")
	if err != nil {
		return exception.NewETLError(moduleName, "failed to create temporary state file", err, false, false)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return exception.NewETLError(moduleName, "failed to write state data", err, false, false)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return exception.NewETLError(moduleName, "failed to sync state data", err, false, false)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return exception.NewETLError(moduleName, "failed to close temporary state file", err, false, false)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to publish state for %q", state.StateKey), err, false, false)
	}

	logger.Debugf("Incremental state saved for %q (watermark=%v, keys=%d).", state.StateKey, state.Watermark, len(state.KeyHashes))
	return nil
}

// Delete implements StateStore.
func (s *FileStateStore) Delete(ctx context.Context, stateKey string) error {
	path, err := s.statePath(stateKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to delete state for %q", stateKey), err, false, false)
	}
	return nil
}

// Verify interfaces
var _ StateStore = (*FileStateStore)(nil)
