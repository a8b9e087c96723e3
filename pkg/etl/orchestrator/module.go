package orchestrator

import "go.uber.org/fx"

// Module is the Fx module for the orchestrator layer.
var Module = fx.Options(
	fx.Provide(NewRunner),
	fx.Provide(NewOperator),
)
