package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/emp-backend/internal/config"
	apperrors "github.com/emp-backend/internal/errors"
	"github.com/emp-backend/internal/logging"
	"github.com/emp-backend/internal/retry"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB creates a connection pool and waits until the database
// answers a ping, retrying up to attempts times
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig, attempts int) (*PostgresDB, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
		cfg.MaxConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	retryCfg := retry.DefaultRetryConfig()
	if attempts > 0 {
		retryCfg.MaxAttempts = attempts
	}
	retryCfg.ShouldRetry = apperrors.IsRetryable

	err = retry.Do(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"host":    cfg.Host,
				"attempt": attempt,
			}).Debug("Postgres not reachable yet")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.NewDatabaseError("ping", err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
