// Package gcs provides the Fx module for the Google Cloud Storage adapter.
package gcs

import (
	"go.uber.org/fx"

	storageAdapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage"
)

// Module is the Fx module for the GCS storage adapter. The provider is
// tagged so the storage Resolver can collect every registered backend.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.As(new(storageAdapter.Provider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
