package incremental

import (
	"go.uber.org/fx"

	gormadapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/database/gorm"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// Module is an Fx module that provides the StateStore selected by
// configuration plus the Tracker.
var Module = fx.Options(
	fx.Provide(func(cfg *config.Config, resolver *gormadapter.ConnectionResolver) (StateStore, error) {
		incCfg := cfg.Tidal.Incremental
		switch incCfg.Backend {
		case "database":
			db, err := resolver.Resolve(incCfg.DBRef)
			if err != nil {
				return nil, err
			}
			return NewGormStateStore(db), nil
		default:
			return NewFileStateStore(incCfg.Dir)
		}
	}),
	fx.Provide(func(cfg *config.Config, store StateStore) *Tracker {
		return NewTracker(store, Mode(cfg.Tidal.Incremental.Mode))
	}),
)
