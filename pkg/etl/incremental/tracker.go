package incremental

import (
	"context"
	"fmt"
	"sync"
	"time"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// Mode selects the delta computation strategy.
type Mode string

const (
	// ModeAppend returns rows whose comparison column exceeds the watermark.
	ModeAppend Mode = "append"
	// ModeCDC additionally detects updated rows by content hash and deleted
	// rows by key inventory.
	ModeCDC Mode = "cdc"
)

// Tracker computes delta record sets against persisted watermarks and
// commits advanced watermarks after durable loads.
type Tracker struct {
	store StateStore
	mode  Mode

	mu      sync.Mutex
	keyLock map[string]*sync.Mutex
	columns map[string][2]string // stateKey -> {keyColumn, comparisonColumn} observed by Delta
}

// NewTracker creates a Tracker over a StateStore.
func NewTracker(store StateStore, mode Mode) *Tracker {
	if mode == "" {
		mode = ModeAppend
	}
	return &Tracker{
		store:   store,
		mode:    mode,
		keyLock: make(map[string]*sync.Mutex),
		columns: make(map[string][2]string),
	}
}

// stateLock returns the single-writer lock for one state key.
func (t *Tracker) stateLock(stateKey string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.keyLock[stateKey]
	if !ok {
		l = &sync.Mutex{}
		t.keyLock[stateKey] = l
	}
	return l
}

// Delta computes the records of currentSnapshot that still need processing.
//
// Without prior state the full snapshot is returned. In append mode the
// result contains records whose comparisonColumn value is strictly greater
// than the stored watermark; records whose value EQUALS the watermark are
// excluded, treated as already processed. This exclusive comparison is safe
// because commit runs only after a durable load, so a boundary-equal value
// has already been incorporated; the cost is that late arrivals sharing the
// exact watermark value are missed, which callers accept by choosing the
// comparison column.
//
// In CDC mode the result additionally contains records whose key is unseen
// or whose content hash differs from the recorded hash, and DeletedKeys
// lists keys present in the previous inventory but absent from the snapshot.
//
// Delta never mutates persisted state; calling it twice without an
// intervening Commit returns the same result.
func (t *Tracker) Delta(ctx context.Context, currentSnapshot model.Snapshot, keyColumn, comparisonColumn, stateKey string) (model.DeltaResult, error) {
	t.mu.Lock()
	t.columns[stateKey] = [2]string{keyColumn, comparisonColumn}
	t.mu.Unlock()

	state, err := t.store.Load(ctx, stateKey)
	if err != nil {
		if err == ErrStateNotFound {
			logger.Debugf("No incremental state for %q, returning full snapshot of %d rows.", stateKey, len(currentSnapshot))
			return model.DeltaResult{Records: currentSnapshot.Clone()}, nil
		}
		return model.DeltaResult{}, err
	}

	result := model.DeltaResult{Records: make(model.Snapshot, 0, len(currentSnapshot))}
	selected := make(map[int]bool, len(currentSnapshot))

	if state.Watermark != nil {
		for i, record := range currentSnapshot {
			value, ok := record[comparisonColumn]
			if !ok {
				logger.Debugf("Record %d of %q is missing comparison column %q, excluded from delta.", i, stateKey, comparisonColumn)
				continue
			}
			cmp, err := compareWatermarks(value, state.Watermark)
			if err != nil {
				return model.DeltaResult{}, exception.NewETLError(moduleName,
					fmt.Sprintf("cannot compare %q value against watermark for %q", comparisonColumn, stateKey), err, false, false)
			}
			if cmp > 0 {
				selected[i] = true
			}
		}
	} else {
		for i := range currentSnapshot {
			selected[i] = true
		}
	}

	if t.mode == ModeCDC {
		seen := make(map[string]bool, len(currentSnapshot))
		for i, record := range currentSnapshot {
			key := fmt.Sprint(record[keyColumn])
			seen[key] = true
			if selected[i] {
				continue
			}
			previousHash, known := state.KeyHashes[key]
			if !known || previousHash != record.Hash() {
				selected[i] = true
			}
		}
		for key := range state.KeyHashes {
			if !seen[key] {
				result.DeletedKeys = append(result.DeletedKeys, key)
			}
		}
	}

	for i, record := range currentSnapshot {
		if selected[i] {
			result.Records = append(result.Records, record)
		}
	}

	logger.Debugf("Delta for %q: %d of %d rows selected, %d deletions.", stateKey, len(result.Records), len(currentSnapshot), len(result.DeletedKeys))
	return result, nil
}

// Commit persists the advanced watermark for stateKey. It must run only
// after the batch has been durably loaded; a crash before Commit causes the
// same window to be reprocessed, which the idempotent replay contract covers.
//
// A newWatermark that compares strictly lower than the stored one is
// rejected with WatermarkRegressionError and state is left unchanged.
// Committing an equal watermark is a permitted no-op advance. A nil
// newWatermark, produced by a run whose delta carried no comparable values,
// keeps the stored watermark; it never clears it. newKeyHashes replaces the
// key inventory when non-nil; otherwise the previous inventory is kept.
func (t *Tracker) Commit(ctx context.Context, stateKey string, newWatermark interface{}, newKeyHashes map[string]string) error {
	lock := t.stateLock(stateKey)
	lock.Lock()
	defer lock.Unlock()

	state, err := t.store.Load(ctx, stateKey)
	if err != nil && err != ErrStateNotFound {
		return err
	}

	// The watermark only ever moves forward; a nil proposal keeps the
	// stored value and at most refreshes the key inventory.
	if newWatermark == nil && state != nil {
		newWatermark = state.Watermark
	}

	if state != nil && state.Watermark != nil && newWatermark != nil {
		cmp, err := compareWatermarks(newWatermark, state.Watermark)
		if err != nil {
			return exception.NewETLError(moduleName,
				fmt.Sprintf("cannot compare proposed watermark against stored one for %q", stateKey), err, false, false)
		}
		if cmp < 0 {
			return exception.NewWatermarkRegressionError(stateKey, state.Watermark, newWatermark)
		}
	}

	if state == nil {
		keyColumn, comparisonColumn := "", ""
		t.mu.Lock()
		if cols, ok := t.columns[stateKey]; ok {
			keyColumn, comparisonColumn = cols[0], cols[1]
		}
		t.mu.Unlock()
		state = &model.IncrementalState{
			StateKey:         stateKey,
			KeyColumn:        keyColumn,
			ComparisonColumn: comparisonColumn,
		}
	}

	state.Watermark = newWatermark
	if newKeyHashes != nil {
		state.KeyHashes = newKeyHashes
	}
	state.UpdatedAt = time.Now().UTC()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	logger.Debugf("Watermark committed for %q: %v.", stateKey, newWatermark)
	return nil
}

// MaxWatermark scans a snapshot for the highest comparison-column value.
// It returns nil when the snapshot carries no comparable values.
func MaxWatermark(snapshot model.Snapshot, comparisonColumn string) (interface{}, error) {
	var max interface{}
	for _, record := range snapshot {
		value, ok := record[comparisonColumn]
		if !ok || value == nil {
			continue
		}
		if max == nil {
			max = value
			continue
		}
		cmp, err := compareWatermarks(value, max)
		if err != nil {
			return nil, err
		}
		if cmp > 0 {
			max = value
		}
	}
	return max, nil
}

// KeyHashes builds the key-to-content-hash inventory of a snapshot for CDC
// commits.
func KeyHashes(snapshot model.Snapshot, keyColumn string) map[string]string {
	hashes := make(map[string]string, len(snapshot))
	for _, record := range snapshot {
		hashes[fmt.Sprint(record[keyColumn])] = record.Hash()
	}
	return hashes
}
