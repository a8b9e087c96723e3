// Package postgres registers the PostgreSQL dialector with the gorm adapter.
package postgres

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	gormadapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/database/gorm"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// init registers the PostgreSQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector("postgres", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(gormadapter.PostgresConnectionString(cfg)), nil
	})
}
