// Package lineage records the data flow of pipeline runs as a node/edge
// graph. Recording is asynchronous and never fails the pipeline.
package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const moduleName = "lineage"

// Node is one dataset or transformation in the lineage graph.
type Node struct {
	ID        string         `json:"id"`
	Ref       string         `json:"ref"`
	Kind      string         `json:"kind"` // "dataset" or "transformation"
	FirstSeen time.Time      `json:"first_seen"`
	Metadata  model.Metadata `json:"metadata,omitempty"`
}

// Edge connects a source node to a target node through a transformation.
type Edge struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Graph is the exported form of the lineage graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// step is one queued recording.
type step struct {
	sourceRef      string
	transformation string
	targetRef      string
	metadata       model.Metadata
}

// Tracker accumulates lineage steps off the critical path. RecordStep
// enqueues and returns immediately; a single worker goroutine folds steps
// into the graph.
type Tracker struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges []Edge

	queue  chan step
	done   chan struct{}
	sendMu sync.RWMutex
	closed bool
}

// NewTracker creates a Tracker with the given queue capacity and starts its
// worker.
func NewTracker(bufferSize int) *Tracker {
	if bufferSize < 1 {
		bufferSize = 1
	}
	t := &Tracker{
		nodes: make(map[string]*Node),
		queue: make(chan step, bufferSize),
		done:  make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Tracker) run() {
	defer close(t.done)
	for s := range t.queue {
		t.record(s)
	}
}

// nodeID derives a stable short identifier from a ref.
func nodeID(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:])[:16]
}

func (t *Tracker) ensureNode(ref, kind string, metadata model.Metadata) string {
	id := nodeID(kind + ":" + ref)
	if _, ok := t.nodes[id]; !ok {
		t.nodes[id] = &Node{
			ID:        id,
			Ref:       ref,
			Kind:      kind,
			FirstSeen: time.Now().UTC(),
			Metadata:  metadata,
		}
	}
	return id
}

func (t *Tracker) record(s step) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sourceID := t.ensureNode(s.sourceRef, "dataset", nil)
	transformID := t.ensureNode(s.transformation, "transformation", s.metadata)
	targetID := t.ensureNode(s.targetRef, "dataset", nil)

	now := time.Now().UTC()
	t.edges = append(t.edges,
		Edge{From: sourceID, To: transformID, RecordedAt: now},
		Edge{From: transformID, To: targetID, RecordedAt: now},
	)
}

// RecordStep enqueues one lineage step. It never blocks: when the queue is
// full the step is dropped with a warning, keeping lineage off the critical
// path.
func (t *Tracker) RecordStep(sourceRef, transformationName, targetRef string, metadata model.Metadata) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- step{sourceRef: sourceRef, transformation: transformationName, targetRef: targetRef, metadata: metadata}:
	default:
		logger.Warnf("Lineage queue full, dropping step %q -> %q -> %q.", sourceRef, transformationName, targetRef)
	}
}

// Export returns a stable copy of the current graph. Nodes are sorted by ID
// so repeated exports of the same graph serialize identically.
func (t *Tracker) Export() Graph {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g := Graph{Edges: make([]Edge, len(t.edges))}
	copy(g.Edges, t.edges)
	for _, n := range t.nodes {
		g.Nodes = append(g.Nodes, *n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	return g
}

// Save drains pending steps and writes the graph as JSON to path.
func (t *Tracker) Save(path string) error {
	t.Close()

	g := t.Export()
	data, err := json.MarshalIndent(&g, "", "  ")
	if err != nil {
		return exception.NewETLError(moduleName, "failed to serialize lineage graph", err, false, false)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to write lineage graph to %q", path), err, false, false)
	}
	logger.Infof("Lineage graph saved to %q (%d nodes, %d edges).", path, len(g.Nodes), len(g.Edges))
	return nil
}

// Close stops the worker after draining the queue. Safe to call repeatedly;
// RecordStep after Close drops silently.
func (t *Tracker) Close() {
	t.sendMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.sendMu.Unlock()
	<-t.done
}
