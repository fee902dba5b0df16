package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"emergency-service/internal/logging"
	"emergency-service/internal/utils"
)

//go:embed schema.sql
var schema string

// DB is the PostgreSQL backed event store.
type DB struct {
	Pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to PostgreSQL, retrying the initial ping while the database comes up.
func New(ctx context.Context, dsn string, logger *logging.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = utils.Retry(ctx, logger, 5, 2*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, Unavailable("connect to database", err)
	}
	return &DB{Pool: pool, now: time.Now}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	if err := d.Pool.Ping(ctx); err != nil {
		return Unavailable("ping database", err)
	}
	return nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

func pgTime(t time.Time) any { return t.UTC() }
