// Package postgres implements the storage repositories on PostgreSQL via
// lib/pq, with an optional Redis + in-process LRU cache in front of hook
// reads. Task claiming relies on FOR UPDATE SKIP LOCKED so that no two
// workers ever claim the same task, and enqueue relies on a unique biz_id
// constraint for idempotency.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/hubcap/pkg/storage"
)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	cache  *HookCache
	config storage.Config
}

// NewStore connects to PostgreSQL, applies the schema, and optionally wires
// the hook read cache.
func NewStore(config storage.Config) (*Store, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var cache *HookCache
	if config.CacheEnabled && config.RedisURL != "" {
		cache, err = NewHookCache(config)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create hook cache: %w", err)
		}
	}

	return &Store{db: db, cache: cache, config: config}, nil
}

// NewStoreWithDB wraps an existing database handle, applying no schema.
// Used by tests that drive the store through sqlmock.
func NewStoreWithDB(db *sql.DB, cache *HookCache) *Store {
	return &Store{db: db, cache: cache, config: storage.DefaultConfig()}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Cache returns the hook read cache, nil when caching is disabled.
func (s *Store) Cache() *HookCache {
	return s.cache
}

// HealthCheck pings the database and, when configured, the cache.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			return fmt.Errorf("hook cache unhealthy: %w", err)
		}
	}
	return nil
}

// Close releases the database and cache connections.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}
