// Package postgres stores face profiles in PostgreSQL. Feature vectors are
// kept as float arrays per family and the shortlist signature as a pgvector
// column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
)

// connectTimeout bounds the initial ping.
const connectTimeout = 10 * time.Second

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db  *sql.DB
	log *zap.Logger
}

var (
	globalPool *Pool
	poolMu     sync.RWMutex
)

// NewPool opens and pings a connection pool. A nil logger discards output.
func NewPool(cfg *config.DatabaseConfig, log *zap.Logger) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	log.Debug("connected to PostgreSQL",
		zap.String("server_version", version),
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return &Pool{db: db, log: log}, nil
}

// Close closes the connection pool and forgets it as the global pool.
func (p *Pool) Close() error {
	poolMu.Lock()
	if globalPool == p {
		globalPool = nil
	}
	poolMu.Unlock()

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

// SetGlobalPool sets the pool the registered backend opens stores on.
func SetGlobalPool(p *Pool) {
	poolMu.Lock()
	defer poolMu.Unlock()
	globalPool = p
}

// GetGlobalPool returns the global pool instance.
func GetGlobalPool() *Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return globalPool
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// BeginTx starts a transaction.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// Initialize connects, applies the migrations and registers the pool as the
// postgres profile store backend.
func Initialize(cfg *config.DatabaseConfig, log *zap.Logger) error {
	pool, err := NewPool(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	SetGlobalPool(pool)
	database.RegisterPostgresBackend(func(ctx context.Context) (database.ProfileStore, io.Closer, error) {
		p := GetGlobalPool()
		if p == nil {
			return nil, nil, errors.New("PostgreSQL pool closed")
		}
		return NewProfileRepository(p), p, nil
	})
	return nil
}
