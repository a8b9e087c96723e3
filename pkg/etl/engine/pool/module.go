package pool

import "go.uber.org/fx"

// Module is an Fx module that provides the WorkerPool.
var Module = fx.Options(
	fx.Provide(NewWorkerPool),
)
