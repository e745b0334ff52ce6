package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS installs (
	id          TEXT PRIMARY KEY,
	package     TEXT NOT NULL,
	ok          BOOLEAN NOT NULL,
	message     TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	request_id  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS installs_created_at_idx ON installs (created_at DESC);`

// DB wraps a PostgreSQL connection pool for the install ledger.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and ensures the schema exists.
func New(ctx context.Context, dsn string, maxConns int, maxLifetime time.Duration) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns) // #nosec G115 -- validated small config value
	}
	config.MinConns = 1
	if maxLifetime > 0 {
		config.MaxConnLifetime = maxLifetime
	}
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogInstall inserts an install record into the ledger.
func (db *DB) LogInstall(ctx context.Context, in *Install) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO installs (id, package, ok, message, duration_ms, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := db.pool.Exec(ctx, query,
		in.ID, in.Package, in.OK,
		truncateForDB(in.Message, 65535),
		in.DurationMS, in.RequestID, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting install: %w", err)
	}
	return nil
}

// ListInstalls queries the ledger, newest first.
func (db *DB) ListInstalls(ctx context.Context, filter InstallFilter) ([]Install, error) {
	query := `
		SELECT id, package, ok, message, duration_ms, request_id, created_at
		FROM installs
		WHERE ($1 = '' OR package = $1)
		  AND (NOT $2 OR ok)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := db.pool.Query(ctx, query,
		filter.Package, filter.OnlyOK, clampLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying installs: %w", err)
	}
	defer rows.Close()

	results := []Install{}
	for rows.Next() {
		var in Install
		if err := rows.Scan(
			&in.ID, &in.Package, &in.OK, &in.Message,
			&in.DurationMS, &in.RequestID, &in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning install row: %w", err)
		}
		results = append(results, in)
	}

	return results, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
