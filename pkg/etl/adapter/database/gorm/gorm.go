// Package gorm provides database connection handling for the metadata stores.
// Concrete dialects register themselves through RegisterDialector from their
// own subpackages, keeping driver imports out of the core.
package gorm

import (
	"fmt"
	"sync"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const moduleName = "database"

// DialectorFactory builds a gorm.Dialector from a connection configuration.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorMu       sync.RWMutex
	dialectorRegistry = make(map[string]DialectorFactory)
)

// RegisterDialector registers a dialector factory under a database type name.
// Called from init functions of the dialect subpackages.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMu.Lock()
	defer dialectorMu.Unlock()
	dialectorRegistry[dbType] = factory
}

// Open opens a GORM connection for the given configuration using the
// registered dialector for its type.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialectorMu.RLock()
	factory, ok := dialectorRegistry[cfg.Type]
	dialectorMu.RUnlock()
	if !ok {
		return nil, exception.NewETLErrorf(moduleName, "unsupported database type %q; is its driver package imported?", cfg.Type)
	}

	dialector, err := factory(cfg)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to build dialector for type %q", cfg.Type), err, false, false)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to open %s database %q", cfg.Type, cfg.Database), err, false, false)
	}

	logger.Debugf("Opened %s database connection to %q.", cfg.Type, cfg.Database)
	return db, nil
}

// MySQLConnectionString builds a MySQL DSN from the configuration using the
// driver's own formatter.
func MySQLConnectionString(cfg config.DatabaseConfig) string {
	mc := gosqlmysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// PostgresConnectionString builds a PostgreSQL DSN from the configuration.
func PostgresConnectionString(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

// SQLiteConnectionString returns the database path for the SQLite driver.
func SQLiteConnectionString(cfg config.DatabaseConfig) string {
	return cfg.Database
}
