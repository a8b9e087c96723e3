// Package incremental computes delta record sets against persisted watermarks
// and, in CDC mode, key-hash inventories.
package incremental

import (
	"context"
	"errors"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
)

// ErrStateNotFound is returned when no incremental state exists for a state key.
var ErrStateNotFound = errors.New("incremental state not found")

// StateStore is the persistence contract for incremental state. Writes under
// one state key are serialized by the Tracker; independent keys need no
// cross-locking.
type StateStore interface {
	// Load returns the state for stateKey, or ErrStateNotFound.
	Load(ctx context.Context, stateKey string) (*model.IncrementalState, error)

	// Save persists the state, overwriting any previous version.
	Save(ctx context.Context, state *model.IncrementalState) error

	// Delete removes the state for stateKey. Missing state is not an error.
	Delete(ctx context.Context, stateKey string) error
}
