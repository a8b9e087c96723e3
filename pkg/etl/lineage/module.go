package lineage

import (
	"context"

	"go.uber.org/fx"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// Module is an Fx module that provides the lineage Tracker and saves the
// graph on shutdown when an output path is configured.
var Module = fx.Options(
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config) *Tracker {
		t := NewTracker(cfg.Tidal.Lineage.BufferSize)
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if cfg.Tidal.Lineage.Enabled && cfg.Tidal.Lineage.OutputPath != "" {
					return t.Save(cfg.Tidal.Lineage.OutputPath)
				}
				t.Close()
				return nil
			},
		})
		return t
	}),
)
