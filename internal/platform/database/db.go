// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package database provides the managed SQL connection pool and the dialect
abstraction over supported database families.

Architecture:

  - This package is part of the Infrastructure layer. It owns the physical
    [database/sql] pool shared by every request handler.
  - The [Dialect] interface isolates family-specific SQL (identifier quoting,
    catalog introspection) so the rest of the gateway is engine-agnostic.

Supported drivers: go-sql-driver/mysql for the MySQL family and the pgx
stdlib adapter for PostgreSQL.
*/
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MySQL driver registers the "mysql" scheme with database/sql.
	_ "github.com/go-sql-driver/mysql"
	// pgx stdlib adapter registers the "pgx" scheme with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Opinionated pool settings for the gateway workload.
const (
	// maxOpenConns bounds simultaneous connections across all handlers.
	maxOpenConns = 25
	// maxIdleConns keeps a warm set of connections to avoid cold-start latency.
	maxIdleConns = 5
	// connMaxLifetime ensures connections are periodically recycled.
	connMaxLifetime = 60 * time.Minute
	// connMaxIdleTime closes connections that have been idle too long.
	connMaxIdleTime = 10 * time.Minute
	// pingTimeout is the maximum duration for a health check ping.
	pingTimeout = 2 * time.Second
)

// Open creates and validates a new SQL connection pool for the configured
// driver, returning the pool together with its matching [Dialect].
//
// # Parameters
//   - ctx: Context for the initial connection attempt.
//   - driver: "mysql" or "postgres".
//   - dsn: A driver-native connection string.
//   - logger: Structured logger for pool-level events.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*sql.DB, Dialect, error) {
	var dialect Dialect

	driverName := driver
	switch driver {
	case "mysql":
		dialect = MySQLDialect{}
	case "postgres":
		dialect = PostgresDialect{}
		driverName = "pgx"
	default:
		return nil, nil, fmt.Errorf("database: unsupported driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("database: failed to open pool: %w", err)
	}

	// Apply pool tuning parameters.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	// Validate that we can actually reach the database.
	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	logger.Info("database pool connected",
		slog.String("driver", driver),
		slog.Int("max_open_conns", maxOpenConns),
	)

	return db, dialect, nil
}

// Ping verifies that the SQL connection pool is healthy.
func Ping(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database: ping failed: %w", err)
	}

	return nil
}
