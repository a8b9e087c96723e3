package gorm

import "go.uber.org/fx"

// Module is an Fx module that provides the database connection resolver.
// Dialect subpackages must be imported (blank) by the application for their
// drivers to be available.
var Module = fx.Options(
	fx.Provide(NewConnectionResolver),
)
