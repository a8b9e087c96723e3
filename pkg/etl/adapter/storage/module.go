package storage

import (
	"context"

	"go.uber.org/fx"
)

// Module is the Fx module for the storage layer. It collects every provider
// registered under the "storage_providers" group into a Resolver and closes
// all connections on shutdown.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewResolver,
		fx.ParamTags(`group:"storage_providers"`, ``),
	)),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return r.CloseAll()
			},
		})
	}),
)
