package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shapeeat/sales-service/config"
)

// ErrNotInitialized is returned when the pool has not been connected
var ErrNotInitialized = errors.New("database not initialized")

var (
	pool     *pgxpool.Pool
	poolMu   sync.RWMutex
	poolOnce sync.Once
)

// ConnectConfig connects the shared pool from the database configuration
func ConnectConfig(ctx context.Context, cfg config.DatabaseConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("database URL is not configured")
	}
	return Connect(ctx, cfg.URL, cfg.MaxConnections, cfg.MinConnections, cfg.MaxConnLifetime, cfg.MaxConnIdleTime)
}

// Connect creates the shared connection pool (safe for concurrent use)
func Connect(ctx context.Context, connString string, maxConns, minConns int, maxLifetime, maxIdleTime time.Duration) error {
	var initErr error
	poolOnce.Do(func() {
		newPool, err := newPool(ctx, connString, maxConns, minConns, maxLifetime, maxIdleTime)
		if err != nil {
			initErr = err
			return
		}

		poolMu.Lock()
		pool = newPool
		poolMu.Unlock()
	})

	if initErr != nil {
		poolOnce = sync.Once{} // reset on failure
		return initErr
	}
	return nil
}

func newPool(ctx context.Context, connString string, maxConns, minConns int, maxLifetime, maxIdleTime time.Duration) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("error parsing database config: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		poolConfig.MinConns = int32(minConns)
	}
	if maxLifetime > 0 {
		poolConfig.MaxConnLifetime = maxLifetime
	}
	if maxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = maxIdleTime
	}
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return p, nil
}

// Close closes the shared pool
func Close() {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
	}
	poolOnce = sync.Once{} // reset to allow reconnection
}

// Pool returns the shared pool, nil before Connect
func Pool() *pgxpool.Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}
