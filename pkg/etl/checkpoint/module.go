package checkpoint

import (
	"go.uber.org/fx"

	gormadapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/database/gorm"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// Module is an Fx module that provides the checkpoint Store selected by
// configuration plus the RecoveryCoordinator.
var Module = fx.Options(
	fx.Provide(func(cfg *config.Config, resolver *gormadapter.ConnectionResolver) (Store, error) {
		ckptCfg := cfg.Tidal.Checkpoint
		switch ckptCfg.Backend {
		case "database":
			db, err := resolver.Resolve(ckptCfg.DBRef)
			if err != nil {
				return nil, err
			}
			return NewGormStore(db), nil
		default:
			return NewFileStore(ckptCfg.Dir)
		}
	}),
	fx.Provide(NewRecoveryCoordinator),
)
