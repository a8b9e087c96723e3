package connector

import "go.uber.org/fx"

// Module is an Fx module that provides the connector Factory.
var Module = fx.Options(
	fx.Provide(NewFactory),
)
