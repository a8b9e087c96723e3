// Package planner partitions snapshots into chunks and adapts the chunk size
// from runtime feedback between batches.
package planner

import (
	"time"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const moduleName = "planner"

// growthFactor and shrinkFactor are the multiplicative adjustment factors for
// adaptive chunk sizing.
const (
	growthFactor = 1.5
	shrinkFactor = 0.5
)

// growthStreak is the number of consecutive under-budget batches required
// before the chunk size is increased.
const growthStreak = 2

// BatchPlanner partitions record sets into chunks. Partitioning is pure; the
// only state held is the under-budget streak that drives Adapt.
type BatchPlanner struct {
	minChunkRows      int
	maxChunkRows      int
	targetChunk       time.Duration
	memoryBudgetRatio float64

	underBudgetStreak int
}

// NewBatchPlanner creates a BatchPlanner from engine configuration.
func NewBatchPlanner(cfg config.EngineConfig) *BatchPlanner {
	return &BatchPlanner{
		minChunkRows:      cfg.MinChunkRows,
		maxChunkRows:      cfg.MaxChunkRows,
		targetChunk:       time.Duration(cfg.TargetChunkMillis) * time.Millisecond,
		memoryBudgetRatio: cfg.MemoryBudgetRatio,
	}
}

// Partition splits a snapshot into contiguous, non-overlapping,
// order-preserving chunks of at most targetChunkRows records. An empty
// snapshot yields zero chunks; a snapshot smaller than targetChunkRows yields
// exactly one chunk.
func (p *BatchPlanner) Partition(snapshot model.Snapshot, targetChunkRows int) ([]model.Chunk, model.BatchPlan, error) {
	if targetChunkRows <= 0 {
		return nil, model.BatchPlan{}, exception.NewETLErrorf(moduleName, "target chunk rows must be positive, got %d", targetChunkRows)
	}

	total := len(snapshot)
	if total == 0 {
		return nil, model.BatchPlan{ChunkSize: targetChunkRows}, nil
	}

	chunkCount := (total + targetChunkRows - 1) / targetChunkRows
	chunks := make([]model.Chunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := i * targetChunkRows
		end := start + targetChunkRows
		if end > total {
			end = total
		}
		chunks = append(chunks, model.Chunk{
			Index:   i,
			Records: snapshot[start:end],
			Status:  model.ChunkStatusPending,
		})
	}

	plan := model.BatchPlan{
		ChunkSize:    targetChunkRows,
		ChunkCount:   chunkCount,
		TotalRecords: total,
	}
	logger.Debugf("Partitioned %d records into %d chunks of <=%d rows.", total, chunkCount, targetChunkRows)
	return chunks, plan, nil
}

// Adapt computes the chunk size for the next batch from the previous batch's
// feedback. The size grows by growthFactor after growthStreak consecutive
// under-budget batches and shrinks by shrinkFactor on the first budget
// violation. The result always lies within [minChunkRows, maxChunkRows].
func (p *BatchPlanner) Adapt(previousChunkSize int, observedDurationPerChunk time.Duration, memoryPressureRatio float64) int {
	underBudget := observedDurationPerChunk <= p.targetChunk && memoryPressureRatio <= p.memoryBudgetRatio

	next := previousChunkSize
	if underBudget {
		p.underBudgetStreak++
		if p.underBudgetStreak >= growthStreak {
			next = int(float64(previousChunkSize) * growthFactor)
			p.underBudgetStreak = 0
			logger.Debugf("Chunk size grown from %d to %d after sustained under-budget batches.", previousChunkSize, next)
		}
	} else {
		next = int(float64(previousChunkSize) * shrinkFactor)
		p.underBudgetStreak = 0
		logger.Debugf("Chunk size shrunk from %d to %d after budget violation (duration=%s, memory=%.2f).",
			previousChunkSize, next, observedDurationPerChunk, memoryPressureRatio)
	}

	if next > p.maxChunkRows {
		next = p.maxChunkRows
	}
	if next < p.minChunkRows {
		next = p.minChunkRows
	}
	return next
}

// ResetStreak clears the under-budget streak, typically at the start of a run.
func (p *BatchPlanner) ResetStreak() {
	p.underBudgetStreak = 0
}
