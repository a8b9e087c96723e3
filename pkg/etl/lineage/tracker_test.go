package lineage_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	"github.com/vitoriamariadb/tidal/pkg/etl/lineage"
)

func TestRecordStepBuildsGraph(t *testing.T) {
	tracker := lineage.NewTracker(16)

	tracker.RecordStep("orders.csv", "orders/batch-0", "orders.json", model.Metadata{"rows_in": 100})
	tracker.RecordStep("orders.csv", "orders/batch-1", "orders.json", model.Metadata{"rows_in": 50})
	tracker.Close()

	g := tracker.Export()
	// Two shared datasets plus one transformation node per batch.
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 4)

	kinds := map[string]int{}
	for _, n := range g.Nodes {
		kinds[n.Kind]++
	}
	assert.Equal(t, 2, kinds["dataset"])
	assert.Equal(t, 2, kinds["transformation"])

	ids := map[string]bool{}
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	for _, e := range g.Edges {
		assert.True(t, ids[e.From])
		assert.True(t, ids[e.To])
	}
}

func TestSaveWritesGraphJSON(t *testing.T) {
	tracker := lineage.NewTracker(16)
	tracker.RecordStep("orders.csv", "orders/batch-0", "orders.json", nil)

	path := filepath.Join(t.TempDir(), "lineage.json")
	require.NoError(t, tracker.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var g lineage.Graph
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 2)
}

func TestRecordStepAfterCloseDropsSilently(t *testing.T) {
	tracker := lineage.NewTracker(16)
	tracker.Close()

	tracker.RecordStep("orders.csv", "orders/batch-0", "orders.json", nil)
	assert.Empty(t, tracker.Export().Edges)
}

func TestCloseIsIdempotent(t *testing.T) {
	tracker := lineage.NewTracker(16)
	tracker.Close()
	tracker.Close()
}

func TestExportIsDeterministic(t *testing.T) {
	tracker := lineage.NewTracker(16)
	tracker.RecordStep("orders.csv", "orders/batch-0", "orders.json", nil)
	tracker.RecordStep("payments.csv", "payments/batch-0", "payments.json", nil)
	tracker.Close()

	first := tracker.Export()
	second := tracker.Export()
	assert.Equal(t, first, second)

	for i := 1; i < len(first.Nodes); i++ {
		assert.Less(t, first.Nodes[i-1].ID, first.Nodes[i].ID)
	}
}

func TestDatasetNodesAreDeduplicated(t *testing.T) {
	tracker := lineage.NewTracker(16)
	for i := 0; i < 5; i++ {
		tracker.RecordStep("orders.csv", "orders/batch-0", "orders.json", nil)
	}
	tracker.Close()

	g := tracker.Export()
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 10)
}
