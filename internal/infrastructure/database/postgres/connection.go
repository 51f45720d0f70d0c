// Package postgres provides connection pool management, transaction
// handling, and health-check utilities for the evidence store. The
// connection pool is created once at startup and injected into the store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Constants for connection retry and pool configuration
// ─────────────────────────────────────────────────────────────────────────────

const (
	// maxRetries is the maximum number of connection attempts before giving up.
	maxRetries = 5

	// initialRetryDelay is the starting delay between retry attempts.
	// Subsequent attempts use exponential backoff: 1s, 2s, 4s, 8s.
	initialRetryDelay = 1 * time.Second

	// defaultMaxConns is the default maximum number of connections in the pool.
	defaultMaxConns = 25

	// defaultMinConns is the default minimum number of idle connections in the pool.
	defaultMinConns = 5

	// defaultMaxConnLifetime is the maximum duration a connection can be reused.
	defaultMaxConnLifetime = 1 * time.Hour

	// defaultMaxConnIdleTime is the maximum duration a connection can be idle.
	defaultMaxConnIdleTime = 30 * time.Minute

	// defaultHealthCheckPeriod is the interval between automatic health checks.
	defaultHealthCheckPeriod = 1 * time.Minute
)

// ─────────────────────────────────────────────────────────────────────────────
// NewConnectionPool — connection pool factory with retry logic
// ─────────────────────────────────────────────────────────────────────────────

// NewConnectionPool creates and initializes a pgxpool.Pool from dsn with
// exponential backoff retry logic. The pool is ready to use upon successful
// return.
//
// Retry strategy:
// - Attempts up to maxRetries (5) connections
// - Initial delay: 1s, then doubles before each further attempt (2s, 4s, 8s)
// - Logs each attempt and final success/failure
//
// The returned pool must be closed by the caller via Close() when the
// application shuts down.
func NewConnectionPool(dsn string, logger logging.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	configurePool(poolConfig)

	var pool *pgxpool.Pool
	retryDelay := initialRetryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("attempting database connection",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", maxRetries),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		cancel()

		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = pool.Ping(pingCtx)
			pingCancel()

			if err == nil {
				logger.Info("database connection established", logging.Any("max_conns", poolConfig.MaxConns))
				return pool, nil
			}

			pool.Close()
			logger.Warn("database ping failed", logging.Int("attempt", attempt), logging.Err(err))
		} else {
			logger.Warn("failed to create connection pool", logging.Int("attempt", attempt), logging.Err(err))
		}

		if attempt == maxRetries {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}

		logger.Info("retrying database connection", logging.Float64("delay_seconds", retryDelay.Seconds()))
		time.Sleep(retryDelay)
		retryDelay *= 2
	}

	return nil, fmt.Errorf("connection retry logic exhausted")
}

// ─────────────────────────────────────────────────────────────────────────────
// Close — graceful connection pool shutdown
// ─────────────────────────────────────────────────────────────────────────────

// Close gracefully shuts down the connection pool, waiting for all active
// connections to be released. This should be called during application shutdown.
//
// The pool must not be used after calling Close.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HealthCheck — connection liveness verification
// ─────────────────────────────────────────────────────────────────────────────

// HealthCheck executes a simple `SELECT 1` query to verify that the database
// is reachable and the connection pool is healthy. This is typically called by
// health-check HTTP endpoints or monitoring probes.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("connection pool is nil")
	}

	// Execute a lightweight query to verify connectivity.
	var result int
	err := pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("health check returned unexpected value: %d", result)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// configurePool — apply default pool settings
// ─────────────────────────────────────────────────────────────────────────────

func configurePool(poolConfig *pgxpool.Config) {
	poolConfig.MaxConns = defaultMaxConns
	poolConfig.MinConns = defaultMinConns
	poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	poolConfig.HealthCheckPeriod = defaultHealthCheckPeriod

	// Register the vector type codec on every new connection so chunk
	// embeddings can be scanned directly into pgvector.Vector.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// WithTransaction — transaction wrapper
// ─────────────────────────────────────────────────────────────────────────────

// WithTransaction executes the provided function within a database transaction.
// If fn returns an error or panics, the transaction is rolled back; otherwise,
// it is committed.
//
// Every call begins a new top-level transaction on pool. It does not look for
// an enclosing transaction in ctx and creates no savepoints.
//
// Usage:
//
//	err := WithTransaction(ctx, pool, func(tx pgx.Tx) error {
//	    _, err := tx.Exec(ctx, "INSERT INTO patents (...) VALUES (...)")
//	    return err
//	})
func WithTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) (err error) {
	// Begin a new transaction.
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure the transaction is finalized (commit or rollback).
	defer func() {
		if p := recover(); p != nil {
			// Panic occurred; rollback and re-panic.
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			// Function returned an error; rollback.
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
			}
		} else {
			// Function succeeded; commit.
			if cmtErr := tx.Commit(ctx); cmtErr != nil {
				err = fmt.Errorf("commit failed: %w", cmtErr)
			}
		}
	}()

	// Execute the user-provided function within the transaction.
	err = fn(tx)
	return err
}
