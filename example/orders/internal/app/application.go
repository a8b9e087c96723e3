// Package app assembles the orders example application with uber-fx.
package app

import (
	"context"
	"os"

	"go.uber.org/fx"

	storageadapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage"
	storagelocal "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage/local"
	gormadapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/database/gorm"
	checkpoint "github.com/vitoriamariadb/tidal/pkg/etl/checkpoint"
	connector "github.com/vitoriamariadb/tidal/pkg/etl/connector"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	planner "github.com/vitoriamariadb/tidal/pkg/etl/engine/planner"
	pool "github.com/vitoriamariadb/tidal/pkg/etl/engine/pool"
	retry "github.com/vitoriamariadb/tidal/pkg/etl/engine/retry"
	export "github.com/vitoriamariadb/tidal/pkg/etl/export"
	incremental "github.com/vitoriamariadb/tidal/pkg/etl/incremental"
	lineage "github.com/vitoriamariadb/tidal/pkg/etl/lineage"
	observe "github.com/vitoriamariadb/tidal/pkg/etl/observe"
	orchestrator "github.com/vitoriamariadb/tidal/pkg/etl/orchestrator"
	quality "github.com/vitoriamariadb/tidal/pkg/etl/quality"
	"github.com/vitoriamariadb/tidal/pkg/etl/support/logger"

	appPipeline "github.com/vitoriamariadb/tidal/example/orders/internal/pipeline"
)

// RunApplication sets up and runs the orders pipeline with uber-fx.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) {
	sourceRef := os.Getenv("ORDERS_SOURCE")
	if sourceRef == "" {
		sourceRef = "./data/orders.csv"
	}
	destRef := os.Getenv("ORDERS_DEST")
	if destRef == "" {
		destRef = "./out/orders.json"
	}

	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),

		logger.Module,
		config.Module,
		gormadapter.Module,

		planner.Module,
		pool.Module,
		retry.Module,
		checkpoint.Module,
		incremental.Module,
		quality.Module,
		lineage.Module,
		connector.Module,
		storagelocal.Module,
		storageadapter.Module,
		export.Module,
		observe.Module,
		orchestrator.Module,

		fx.Invoke(func(lc fx.Lifecycle, operator *orchestrator.Operator, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						defer shutdowner.Shutdown()

						p := appPipeline.NewOrdersPipeline(sourceRef, destRef)

						var err error
						if resume := os.Getenv("ORDERS_RESUME") == "true"; resume {
							_, err = operator.ResumePipeline(appCtx, p)
						} else {
							_, err = operator.StartPipeline(appCtx, p)
						}
						if err != nil {
							logger.Errorf("Orders pipeline failed: %v", err)
							return
						}

						infos, err := operator.InspectCheckpoints(appCtx, p.Name)
						if err != nil {
							logger.Errorf("Failed to inspect checkpoints: %v", err)
							return
						}
						logger.Infof("Pipeline '%s' holds %d checkpoints.", p.Name, len(infos))

						keepLast := 5
						if _, err := operator.PurgeCheckpoints(appCtx, p.Name, keepLast); err != nil {
							logger.Errorf("Failed to purge checkpoints: %v", err)
						}
					}()
					return nil
				},
			})
		}),
	)

	app.Run()
}
