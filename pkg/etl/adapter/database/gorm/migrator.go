package gorm

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	gormdb "gorm.io/gorm"

	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

//go:embed migrations/*/*.sql
var migrationFS embed.FS

const migrationsTable = "etl_schema_migrations"

// Migrator applies the embedded schema migrations for the metadata tables
// (checkpoints and incremental state) to one database connection.
type Migrator struct {
	db     *gormdb.DB
	dbType string
}

// NewMigrator creates a Migrator for a connection of the given type
// ("sqlite", "mysql" or "postgres").
func NewMigrator(db *gormdb.DB, dbType string) *Migrator {
	return &Migrator{db: db, dbType: dbType}
}

// databaseDriver builds the migrate database driver for the connection type.
func (m *Migrator) databaseDriver(sqlDB *sql.DB) (database.Driver, error) {
	switch m.dbType {
	case "postgres":
		return migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{MigrationsTable: migrationsTable})
	case "mysql":
		return migratemysql.WithInstance(sqlDB, &migratemysql.Config{MigrationsTable: migrationsTable})
	case "sqlite":
		return migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{MigrationsTable: migrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return exception.NewETLError(moduleName, "failed to access underlying sql.DB for migration", err, false, false)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations/"+m.dbType)
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to load embedded migrations for %q", m.dbType), err, false, false)
	}

	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return exception.NewETLError(moduleName, "failed to create migration database driver", err, false, false)
	}

	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return exception.NewETLError(moduleName, "failed to create migrate instance", err, false, false)
	}

	if err := instance.Up(); err != nil && err != migrate.ErrNoChange {
		return exception.NewETLError(moduleName, fmt.Sprintf("schema migration failed for %q", m.dbType), err, false, false)
	}

	logger.Infof("Schema migrations applied for %s metadata database.", m.dbType)
	return nil
}
