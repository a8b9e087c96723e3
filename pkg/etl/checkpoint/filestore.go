package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	serialization "github.com/vitoriamariadb/tidal/pkg/etl/support/serialization"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const moduleName = "checkpoint"

const checkpointFileSuffix = ".ckpt.json"

// envelope is the on-disk document for one checkpoint.
type envelope struct {
	ID             string          `json:"id"`
	PipelineName   string          `json:"pipeline_name"`
	SequenceNumber uint64          `json:"sequence_number"`
	Step           string          `json:"step"`
	Payload        json.RawMessage `json:"payload"`
	Metadata       json.RawMessage `json:"metadata"`
	Checksum       string          `json:"checksum"`
	CreatedAt      time.Time       `json:"created_at"`
}

// FileStore is a Store backed by one directory per pipeline. Each checkpoint
// is a single JSON document published atomically via a temp file and rename.
type FileStore struct {
	baseDir string

	mu        sync.Mutex
	writeLock map[string]*sync.Mutex
}

// NewFileStore creates a FileStore rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, exception.NewETLError(moduleName, "checkpoint directory cannot be empty", nil, false, false)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to create checkpoint directory %q", baseDir), err, false, false)
	}
	return &FileStore{
		baseDir:   baseDir,
		writeLock: make(map[string]*sync.Mutex),
	}, nil
}

// pipelineLock returns the single-writer lock for one pipeline.
func (s *FileStore) pipelineLock(pipelineName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.writeLock[pipelineName]
	if !ok {
		l = &sync.Mutex{}
		s.writeLock[pipelineName] = l
	}
	return l
}

// pipelineDir resolves the directory for one pipeline, rejecting names that
// would escape the store root.
func (s *FileStore) pipelineDir(pipelineName string) (string, error) {
	if pipelineName == "" {
		return "", exception.NewETLError(moduleName, "pipeline name cannot be empty", nil, false, false)
	}
	dir := filepath.Join(s.baseDir, filepath.Clean(pipelineName))
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to resolve checkpoint base directory", err, false, false)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to resolve pipeline directory", err, false, false)
	}
	if !strings.HasPrefix(absDir, absBase+string(os.PathSeparator)) {
		return "", exception.NewETLErrorf(moduleName, "pipeline name %q escapes the checkpoint directory", pipelineName)
	}
	return dir, nil
}

// sequenceFiles returns the checkpoint file names of a pipeline sorted by
// sequence number descending. A missing directory yields an empty slice.
func (s *FileStore) sequenceFiles(pipelineName string) (string, []string, error) {
	dir, err := s.pipelineDir(pipelineName)
	if err != nil {
		return "", nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return dir, nil, nil
		}
		return "", nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to list checkpoints for %q", pipelineName), err, false, false)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), checkpointFileSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return dir, names, nil
}

// sequenceFromName parses the sequence number out of a checkpoint file name.
func sequenceFromName(name string) (uint64, error) {
	base := strings.TrimSuffix(name, checkpointFileSuffix)
	return strconv.ParseUint(base, 10, 64)
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, pipelineName, step string, payload model.Snapshot, metadata model.Metadata) (string, error) {
	lock := s.pipelineLock(pipelineName)
	lock.Lock()
	defer lock.Unlock()

	dir, names, err := s.sequenceFiles(pipelineName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", exception.NewETLError(moduleName, fmt.Sprintf("failed to create pipeline directory for %q", pipelineName), err, false, false)
	}

	var nextSeq uint64 = 1
	if len(names) > 0 {
		latest, err := sequenceFromName(names[0])
		if err != nil {
			return "", exception.NewETLError(moduleName, fmt.Sprintf("unparsable checkpoint file name %q", names[0]), err, false, false)
		}
		nextSeq = latest + 1
	}

	payloadBytes, err := serialization.MarshalPayload(payload)
	if err != nil {
		return "", err
	}
	metaBytes, err := serialization.MarshalMetadata(metadata)
	if err != nil {
		return "", err
	}

	env := envelope{
		ID:             uuid.New().String(),
		PipelineName:   pipelineName,
		SequenceNumber: nextSeq,
		Step:           step,
		Payload:        payloadBytes,
		Metadata:       metaBytes,
		Checksum:       payloadChecksum(payloadBytes),
		CreatedAt:      time.Now().UTC(),
	}
	envBytes, err := json.Marshal(&env)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to serialize checkpoint envelope", err, false, false)
	}

	finalPath := filepath.Join(dir, fmt.Sprintf("%012d%s", nextSeq, checkpointFileSuffix))

	// Atomic publish: write to a temp file in the same directory, sync, then rename.
	tmp, err := os.CreateTemp(dir, ".tmp-ckpt-*")
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to create temporary checkpoint file", err, false, false)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(envBytes); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", exception.NewETLError(moduleName, "failed to write checkpoint data", err, false, false)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", exception.NewETLError(moduleName, "failed to sync checkpoint data", err, false, false)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", exception.NewETLError(moduleName, "failed to close temporary checkpoint file", err, false, false)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", exception.NewETLError(moduleName, "failed to publish checkpoint", err, false, false)
	}

	logger.Debugf("Checkpoint %s published for pipeline %q (seq=%d, step=%q, rows=%d).",
		env.ID, pipelineName, nextSeq, step, len(payload))
	return env.ID, nil
}

// readEnvelope loads and decodes one checkpoint file.
func readEnvelope(path string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// decodeRecord turns a verified envelope into a CheckpointRecord.
func decodeRecord(env *envelope) (*model.CheckpointRecord, error) {
	var payload model.Snapshot
	if err := serialization.UnmarshalPayload(env.Payload, &payload); err != nil {
		return nil, err
	}
	meta := map[string]interface{}{}
	if err := serialization.UnmarshalMetadata(env.Metadata, &meta); err != nil {
		return nil, err
	}
	return &model.CheckpointRecord{
		PipelineName:   env.PipelineName,
		SequenceNumber: env.SequenceNumber,
		Step:           env.Step,
		Payload:        payload,
		Metadata:       model.Metadata(meta),
		Checksum:       env.Checksum,
		CreatedAt:      env.CreatedAt,
	}, nil
}

// LoadLatestValid implements Store.
func (s *FileStore) LoadLatestValid(ctx context.Context, pipelineName string) (*model.CheckpointRecord, error) {
	dir, names, err := s.sequenceFiles(pipelineName)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrCheckpointNotFound
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		env, err := readEnvelope(path)
		if err != nil {
			logger.Warnf("Checkpoint %q of pipeline %q is unreadable, falling back to older one: %v", name, pipelineName, err)
			continue
		}
		if payloadChecksum(env.Payload) != env.Checksum {
			logger.Warnf("Checkpoint %q of pipeline %q failed checksum verification, falling back to older one.", name, pipelineName)
			continue
		}
		record, err := decodeRecord(env)
		if err != nil {
			logger.Warnf("Checkpoint %q of pipeline %q has an undecodable payload, falling back to older one: %v", name, pipelineName, err)
			continue
		}
		return record, nil
	}

	return nil, exception.NewCorruptCheckpointError(pipelineName, "all stored checkpoints failed verification")
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, pipelineName string) ([]model.CheckpointInfo, error) {
	dir, names, err := s.sequenceFiles(pipelineName)
	if err != nil {
		return nil, err
	}

	infos := make([]model.CheckpointInfo, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		env, err := readEnvelope(path)
		if err != nil {
			seq, _ := sequenceFromName(name)
			infos = append(infos, model.CheckpointInfo{
				PipelineName:   pipelineName,
				SequenceNumber: seq,
				Valid:          false,
			})
			continue
		}
		meta := map[string]interface{}{}
		if err := serialization.UnmarshalMetadata(env.Metadata, &meta); err != nil {
			meta = map[string]interface{}{}
		}
		infos = append(infos, model.CheckpointInfo{
			PipelineName:   env.PipelineName,
			SequenceNumber: env.SequenceNumber,
			Step:           env.Step,
			Metadata:       model.Metadata(meta),
			Checksum:       env.Checksum,
			CreatedAt:      env.CreatedAt,
			Valid:          payloadChecksum(env.Payload) == env.Checksum,
		})
	}
	return infos, nil
}

// Expire implements Store.
func (s *FileStore) Expire(ctx context.Context, pipelineName string, keepLastN int) (int, error) {
	if keepLastN < 0 {
		return 0, exception.NewETLErrorf(moduleName, "keepLastN must not be negative, got %d", keepLastN)
	}

	lock := s.pipelineLock(pipelineName)
	lock.Lock()
	defer lock.Unlock()

	dir, names, err := s.sequenceFiles(pipelineName)
	if err != nil {
		return 0, err
	}

	// Keep the newest N valid checkpoints; everything else goes.
	kept := 0
	deleted := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		valid := false
		if env, err := readEnvelope(path); err == nil && payloadChecksum(env.Payload) == env.Checksum {
			valid = true
		}
		if valid && kept < keepLastN {
			kept++
			continue
		}
		if err := os.Remove(path); err != nil {
			return deleted, exception.NewETLError(moduleName, fmt.Sprintf("failed to delete checkpoint %q", name), err, false, false)
		}
		deleted++
	}

	if deleted > 0 {
		logger.Infof("Expired %d checkpoints for pipeline %q, kept %d.", deleted, pipelineName, kept)
	}
	return deleted, nil
}

// Verify interfaces
var _ Store = (*FileStore)(nil)
