package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"hotpool/internal/config"
)

// Driver names accepted in database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Open returns the alert audit store selected by cfg.Driver, with its schema
// in place. An empty DSN yields ErrNotConfigured.
func Open(ctx context.Context, cfg config.DatabaseConfig) (AlertStore, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}

	var store AlertStore
	switch strings.ToLower(cfg.Driver) {
	case "", DriverPostgres, "pgx":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = NewStore(pool)
	case DriverSQLite, "sqlite3":
		lite, err := OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		store = lite
	default:
		return nil, fmt.Errorf("unsupported database.driver %q", cfg.Driver)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
