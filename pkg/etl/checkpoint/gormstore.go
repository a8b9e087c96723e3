package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	serialization "github.com/vitoriamariadb/tidal/pkg/etl/support/serialization"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// checkpointEntity is the GORM mapping for one checkpoint row.
type checkpointEntity struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(36)"`
	PipelineName   string    `gorm:"column:pipeline_name;uniqueIndex:idx_ckpt_pipeline_seq;not null"`
	SequenceNumber uint64    `gorm:"column:sequence_number;uniqueIndex:idx_ckpt_pipeline_seq;not null"`
	Step           string    `gorm:"column:step;not null"`
	Payload        []byte    `gorm:"column:payload"`
	Metadata       []byte    `gorm:"column:metadata"`
	Checksum       string    `gorm:"column:checksum;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName maps the entity to the etl_checkpoints table.
func (checkpointEntity) TableName() string { return "etl_checkpoints" }

// GormStore is a Store backed by a relational database through GORM.
type GormStore struct {
	db *gorm.DB

	mu        sync.Mutex
	writeLock map[string]*sync.Mutex
}

// NewGormStore creates a GormStore over an open GORM handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:        db,
		writeLock: make(map[string]*sync.Mutex),
	}
}

func (s *GormStore) pipelineLock(pipelineName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.writeLock[pipelineName]
	if !ok {
		l = &sync.Mutex{}
		s.writeLock[pipelineName] = l
	}
	return l
}

// Create implements Store. The sequence number is allocated and the row
// inserted inside one transaction, so a checkpoint is visible only complete.
func (s *GormStore) Create(ctx context.Context, pipelineName, step string, payload model.Snapshot, metadata model.Metadata) (string, error) {
	if pipelineName == "" {
		return "", exception.NewETLError(moduleName, "pipeline name cannot be empty", nil, false, false)
	}

	lock := s.pipelineLock(pipelineName)
	lock.Lock()
	defer lock.Unlock()

	payloadBytes, err := serialization.MarshalPayload(payload)
	if err != nil {
		return "", err
	}
	metaBytes, err := serialization.MarshalMetadata(metadata)
	if err != nil {
		return "", err
	}

	entity := checkpointEntity{
		ID:        uuid.New().String(),
		Step:      step,
		Payload:   payloadBytes,
		Metadata:  metaBytes,
		Checksum:  payloadChecksum(payloadBytes),
		CreatedAt: time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest uint64
		row := tx.Model(&checkpointEntity{}).
			Where("pipeline_name = ?", pipelineName).
			Select("COALESCE(MAX(sequence_number), 0)").
			Row()
		if err := row.Scan(&latest); err != nil {
			return err
		}
		entity.PipelineName = pipelineName
		entity.SequenceNumber = latest + 1
		return tx.Create(&entity).Error
	})
	if err != nil {
		return "", exception.NewETLError(moduleName, fmt.Sprintf("failed to persist checkpoint for pipeline %q", pipelineName), err, false, false)
	}

	logger.Debugf("Checkpoint %s persisted for pipeline %q (seq=%d, step=%q, rows=%d).",
		entity.ID, pipelineName, entity.SequenceNumber, step, len(payload))
	return entity.ID, nil
}

// toRecord converts a verified entity into a CheckpointRecord.
func (e *checkpointEntity) toRecord() (*model.CheckpointRecord, error) {
	var payload model.Snapshot
	if err := serialization.UnmarshalPayload(e.Payload, &payload); err != nil {
		return nil, err
	}
	meta := map[string]interface{}{}
	if err := serialization.UnmarshalMetadata(e.Metadata, &meta); err != nil {
		return nil, err
	}
	return &model.CheckpointRecord{
		PipelineName:   e.PipelineName,
		SequenceNumber: e.SequenceNumber,
		Step:           e.Step,
		Payload:        payload,
		Metadata:       model.Metadata(meta),
		Checksum:       e.Checksum,
		CreatedAt:      e.CreatedAt,
	}, nil
}

// LoadLatestValid implements Store.
func (s *GormStore) LoadLatestValid(ctx context.Context, pipelineName string) (*model.CheckpointRecord, error) {
	var entities []checkpointEntity
	err := s.db.WithContext(ctx).
		Where("pipeline_name = ?", pipelineName).
		Order("sequence_number DESC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to load checkpoints for pipeline %q", pipelineName), err, false, false)
	}
	if len(entities) == 0 {
		return nil, ErrCheckpointNotFound
	}

	for i := range entities {
		e := &entities[i]
		if payloadChecksum(e.Payload) != e.Checksum {
			logger.Warnf("Checkpoint seq=%d of pipeline %q failed checksum verification, falling back to older one.", e.SequenceNumber, pipelineName)
			continue
		}
		record, err := e.toRecord()
		if err != nil {
			logger.Warnf("Checkpoint seq=%d of pipeline %q has an undecodable payload, falling back to older one: %v", e.SequenceNumber, pipelineName, err)
			continue
		}
		return record, nil
	}

	return nil, exception.NewCorruptCheckpointError(pipelineName, "all stored checkpoints failed verification")
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, pipelineName string) ([]model.CheckpointInfo, error) {
	var entities []checkpointEntity
	err := s.db.WithContext(ctx).
		Where("pipeline_name = ?", pipelineName).
		Order("sequence_number DESC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to list checkpoints for pipeline %q", pipelineName), err, false, false)
	}

	infos := make([]model.CheckpointInfo, 0, len(entities))
	for i := range entities {
		e := &entities[i]
		meta := map[string]interface{}{}
		if err := serialization.UnmarshalMetadata(e.Metadata, &meta); err != nil {
			meta = map[string]interface{}{}
		}
		infos = append(infos, model.CheckpointInfo{
			PipelineName:   e.PipelineName,
			SequenceNumber: e.SequenceNumber,
			Step:           e.Step,
			Metadata:       model.Metadata(meta),
			Checksum:       e.Checksum,
			CreatedAt:      e.CreatedAt,
			Valid:          payloadChecksum(e.Payload) == e.Checksum,
		})
	}
	return infos, nil
}

// Expire implements Store.
func (s *GormStore) Expire(ctx context.Context, pipelineName string, keepLastN int) (int, error) {
	if keepLastN < 0 {
		return 0, exception.NewETLErrorf(moduleName, "keepLastN must not be negative, got %d", keepLastN)
	}

	lock := s.pipelineLock(pipelineName)
	lock.Lock()
	defer lock.Unlock()

	var entities []checkpointEntity
	err := s.db.WithContext(ctx).
		Where("pipeline_name = ?", pipelineName).
		Order("sequence_number DESC").
		Find(&entities).Error
	if err != nil {
		return 0, exception.NewETLError(moduleName, fmt.Sprintf("failed to list checkpoints for pipeline %q", pipelineName), err, false, false)
	}

	kept := 0
	var doomed []string
	for i := range entities {
		e := &entities[i]
		valid := payloadChecksum(e.Payload) == e.Checksum
		if valid && kept < keepLastN {
			kept++
			continue
		}
		doomed = append(doomed, e.ID)
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", doomed).Delete(&checkpointEntity{})
	if res.Error != nil {
		return 0, exception.NewETLError(moduleName, fmt.Sprintf("failed to expire checkpoints for pipeline %q", pipelineName), res.Error, false, false)
	}

	deleted := int(res.RowsAffected)
	if deleted > 0 {
		logger.Infof("Expired %d checkpoints for pipeline %q, kept %d.", deleted, pipelineName, kept)
	}
	return deleted, nil
}

// IsNotFound reports whether err is the missing-checkpoint sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound)
}

// Verify interfaces
var _ Store = (*GormStore)(nil)
