package planner

import (
	"go.uber.org/fx"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// Module is an Fx module that provides the BatchPlanner.
var Module = fx.Options(
	fx.Provide(func(cfg *config.Config) *BatchPlanner {
		return NewBatchPlanner(cfg.Tidal.Engine)
	}),
)
