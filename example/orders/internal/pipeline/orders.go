// Package pipeline defines the orders ETL pipeline: it reads raw order rows
// from CSV, derives line totals and order ages, validates the result and
// writes it as JSON.
package pipeline

import (
	"context"
	"fmt"
	"time"

	connector "github.com/vitoriamariadb/tidal/pkg/etl/connector"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	export "github.com/vitoriamariadb/tidal/pkg/etl/export"
	orchestrator "github.com/vitoriamariadb/tidal/pkg/etl/orchestrator"
	quality "github.com/vitoriamariadb/tidal/pkg/etl/quality"
)

// NewOrdersPipeline builds the orders pipeline definition.
func NewOrdersPipeline(sourceRef, destRef string) orchestrator.Pipeline {
	minTotal := 0.0
	return orchestrator.Pipeline{
		Name:      "orders",
		SourceRef: sourceRef,
		DestRef:   destRef,
		Transform: transformOrders,
		DestOptions: connector.Options{
			"pretty": true,
		},
		Incremental: orchestrator.IncrementalSpec{
			Enabled:          true,
			KeyColumn:        "order_id",
			ComparisonColumn: "updated_at",
		},
		Rules: []quality.Rule{
			&quality.CompletenessRule{Column: "order_id", Threshold: 1.0},
			&quality.UniquenessRule{Column: "order_id"},
			&quality.RangeRule{Column: "total", Min: &minTotal},
		},
		Exports: []export.Request{
			{
				Format:       "parquet",
				StorageRef:   "exports",
				ObjectPrefix: "orders",
			},
		},
	}
}

// transformOrders derives per-record fields from the raw order rows.
func transformOrders(ctx context.Context, records model.Snapshot) (model.Snapshot, error) {
	out := make(model.Snapshot, 0, len(records))
	for _, record := range records {
		quantity, err := asFloat(record["quantity"])
		if err != nil {
			return nil, fmt.Errorf("order %v: %w", record["order_id"], err)
		}
		unitPrice, err := asFloat(record["unit_price"])
		if err != nil {
			return nil, fmt.Errorf("order %v: %w", record["order_id"], err)
		}

		enriched := make(model.Record, len(record)+2)
		for k, v := range record {
			enriched[k] = v
		}
		enriched["total"] = quantity * unitPrice
		enriched["processed_at"] = time.Now().UTC().Format(time.RFC3339)
		out = append(out, enriched)
	}
	return out, nil
}

func asFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", v)
	}
}
