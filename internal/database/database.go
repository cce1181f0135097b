// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package database provides the Postgres data access layer: connection pool
// management, schema bootstrap, and one repository per aggregate (users,
// content, saves, clusters, jobs).
//
// Concurrency-sensitive operations rely on Postgres primitives rather than
// in-process locks: unique indexes for first-save races, SELECT ... FOR
// UPDATE for status transitions, and pg_advisory_xact_lock for per-user
// cluster replacement.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/logging"
)

// DB wraps the pgx connection pool and exposes the repositories.
type DB struct {
	pool *pgxpool.Pool

	Users    *UserRepo
	Content  *ContentRepo
	Saves    *SaveRepo
	Clusters *ClusterRepo
	Jobs     *JobRepo
}

// New connects to Postgres, verifies the connection, and wires the
// repositories. The schema is NOT created here; call EnsureSchema
// explicitly during startup.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool}
	db.Users = &UserRepo{db: db}
	db.Content = &ContentRepo{db: db}
	db.Saves = &SaveRepo{db: db}
	db.Clusters = &ClusterRepo{db: db}
	db.Jobs = &JobRepo{db: db}

	logging.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Database connection pool established")

	return db, nil
}

// Pool exposes the underlying pool for components that manage their own
// SQL (the vector index shares the pool when no dedicated DSN is set).
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping verifies connectivity; used by the readiness endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
