package gorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// ConnectionResolver opens and caches named database connections from the
// configuration. Connections are opened lazily and shared.
type ConnectionResolver struct {
	cfg *config.Config

	mu    sync.Mutex
	conns map[string]*gorm.DB
}

// NewConnectionResolver creates a ConnectionResolver over the configuration.
func NewConnectionResolver(cfg *config.Config) *ConnectionResolver {
	return &ConnectionResolver{
		cfg:   cfg,
		conns: make(map[string]*gorm.DB),
	}
}

// Resolve returns the connection registered under name, opening it on first use.
func (r *ConnectionResolver) Resolve(name string) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.conns[name]; ok {
		return db, nil
	}

	dbCfg, err := r.cfg.DatabaseConfigFor(name)
	if err != nil {
		return nil, err
	}

	db, err := Open(dbCfg)
	if err != nil {
		return nil, err
	}
	r.conns[name] = db
	return db, nil
}

// TypeOf returns the configured database type for a named connection.
func (r *ConnectionResolver) TypeOf(name string) (string, error) {
	dbCfg, err := r.cfg.DatabaseConfigFor(name)
	if err != nil {
		return "", err
	}
	return dbCfg.Type, nil
}

// Close closes all opened connections.
func (r *ConnectionResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, db := range r.conns {
		sqlDB, err := db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = exception.NewETLError(moduleName, fmt.Sprintf("failed to access underlying connection %q", name), err, false, false)
			}
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = exception.NewETLError(moduleName, fmt.Sprintf("failed to close connection %q", name), err, false, false)
		}
		logger.Debugf("Closed database connection %q.", name)
	}
	r.conns = make(map[string]*gorm.DB)
	return firstErr
}
