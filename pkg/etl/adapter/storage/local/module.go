// Package local provides the Fx module for the local storage adapter.
package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage"
)

// Module is the Fx module for the local storage adapter. The provider is
// tagged so the storage Resolver can collect every registered backend.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storageAdapter.Provider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
