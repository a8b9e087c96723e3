package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

// stateEntity is the GORM mapping for one incremental state row. Watermark
// and key hashes are stored as JSON so the column survives any scalar type.
type stateEntity struct {
	StateKey         string    `gorm:"column:state_key;primaryKey;type:varchar(255)"`
	KeyColumn        string    `gorm:"column:key_column;not null"`
	ComparisonColumn string    `gorm:"column:comparison_column;not null"`
	Watermark        []byte    `gorm:"column:watermark"`
	KeyHashes        []byte    `gorm:"column:key_hashes"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

// TableName maps the entity to the etl_incremental_state table.
func (stateEntity) TableName() string { return "etl_incremental_state" }

// GormStateStore is a StateStore backed by a relational database through GORM.
type GormStateStore struct {
	db *gorm.DB
}

// NewGormStateStore creates a GormStateStore over an open GORM handle.
func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{db: db}
}

// Load implements StateStore.
func (s *GormStateStore) Load(ctx context.Context, stateKey string) (*model.IncrementalState, error) {
	var entity stateEntity
	err := s.db.WithContext(ctx).Where("state_key = ?", stateKey).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to load state for %q", stateKey), err, false, false)
	}

	var watermark interface{}
	if len(entity.Watermark) > 0 {
		if err := json.Unmarshal(entity.Watermark, &watermark); err != nil {
			return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to decode watermark for %q", stateKey), err, false, false)
		}
	}
	var keyHashes map[string]string
	if len(entity.KeyHashes) > 0 {
		if err := json.Unmarshal(entity.KeyHashes, &keyHashes); err != nil {
			return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to decode key hashes for %q", stateKey), err, false, false)
		}
	}

	return &model.IncrementalState{
		StateKey:         entity.StateKey,
		KeyColumn:        entity.KeyColumn,
		ComparisonColumn: entity.ComparisonColumn,
		Watermark:        watermark,
		KeyHashes:        keyHashes,
		UpdatedAt:        entity.UpdatedAt,
	}, nil
}

// Save implements StateStore. The row is upserted on the state key.
func (s *GormStateStore) Save(ctx context.Context, state *model.IncrementalState) error {
	watermark, err := json.Marshal(state.Watermark)
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to encode watermark for %q", state.StateKey), err, false, false)
	}
	var keyHashes []byte
	if state.KeyHashes != nil {
		keyHashes, err = json.Marshal(state.KeyHashes)
		if err != nil {
			return exception.NewETLError(moduleName, fmt.Sprintf("failed to encode key hashes for %q", state.StateKey), err, false, false)
		}
	}

	entity := stateEntity{
		StateKey:         state.StateKey,
		KeyColumn:        state.KeyColumn,
		ComparisonColumn: state.ComparisonColumn,
		Watermark:        watermark,
		KeyHashes:        keyHashes,
		UpdatedAt:        state.UpdatedAt.UTC(),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		UpdateAll: true,
	}).Create(&entity).Error
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to persist state for %q", state.StateKey), err, false, false)
	}
	return nil
}

// Delete implements StateStore.
func (s *GormStateStore) Delete(ctx context.Context, stateKey string) error {
	err := s.db.WithContext(ctx).Where("state_key = ?", stateKey).Delete(&stateEntity{}).Error
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to delete state for %q", stateKey), err, false, false)
	}
	return nil
}

// Verify interfaces
var _ StateStore = (*GormStateStore)(nil)
