package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
)

// Pool sizing.
const (
	minPoolConns    = 1
	maxPoolConns    = 10
	connMaxLifetime = 5 * time.Minute
)

// PoolRegistry hands out one lazily opened *sql.DB per connection string.
// It is owned by the tool set rather than being a package global, so tests
// and parallel servers get isolated pools. Connection strings carry
// passwords and are never logged.
type PoolRegistry struct {
	mu     sync.Mutex
	pools  map[string]*sql.DB
	logger *slog.Logger
}

// NewPoolRegistry creates an empty registry.
func NewPoolRegistry(logger *slog.Logger) *PoolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolRegistry{
		pools:  make(map[string]*sql.DB),
		logger: logger,
	}
}

// Get returns the pool for a connection string, opening it on first use.
func (p *PoolRegistry) Get(dsn string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.pools[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxPoolConns)
	db.SetMaxIdleConns(minPoolConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	p.pools[dsn] = db
	p.logger.Debug("database pool opened", slog.Int("pools", len(p.pools)))
	return db, nil
}

// Close closes every pool. Called at shutdown.
func (p *PoolRegistry) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for dsn, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.pools, dsn)
	}
	return firstErr
}
