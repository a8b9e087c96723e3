package export

import "go.uber.org/fx"

// Module is an Fx module that provides the Exporter.
var Module = fx.Options(
	fx.Provide(NewExporter),
)
