// Package mysql registers the MySQL dialector with the gorm adapter.
package mysql

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormadapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/database/gorm"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// init registers the MySQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector("mysql", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(gormadapter.MySQLConnectionString(cfg)), nil
	})
}
