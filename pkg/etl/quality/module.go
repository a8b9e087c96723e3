package quality

import "go.uber.org/fx"

// Module is an Fx module that provides an empty Validator for applications
// to populate with rules.
var Module = fx.Options(
	fx.Provide(func() *Validator { return NewValidator() }),
)
