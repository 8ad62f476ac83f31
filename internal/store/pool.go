// Package store implements the three repositories (Client, Channel,
// Message) over a PostgreSQL pool. No repository holds a package-global
// pool; the pool is an explicit constructor argument everywhere (§9's
// "global-pool pattern" redesign note).
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool builds a connection pool bounded per §5: max 20 connections, 2s
// connect timeout, 30s idle timeout.
func NewPool(ctx context.Context, databaseURL string, maxConns int32, connectTimeout, idleTimeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = idleTimeout
	cfg.ConnConfig.ConnectTimeout = connectTimeout

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Schema is applied once at boot if the tables don't already exist. The
// teacher's PoC has no persistence layer to ground this on; the table
// shapes follow spec.md §6 directly.
const Schema = `
CREATE TABLE IF NOT EXISTS clients (
	id UUID PRIMARY KEY,
	api_key TEXT UNIQUE NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channels (
	chat_id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	unique_hash TEXT UNIQUE NOT NULL,
	channel_id BIGINT NOT NULL REFERENCES channels(chat_id) ON DELETE CASCADE,
	direction TEXT,
	ticker TEXT,
	entry_price NUMERIC(20,8),
	stop_loss NUMERIC(20,8),
	take_profit NUMERIC(20,8),
	content_text TEXT NOT NULL,
	original_timestamp TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	parsed_signal JSONB
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages(channel_id);
CREATE INDEX IF NOT EXISTS idx_messages_direction ON messages(direction);
CREATE INDEX IF NOT EXISTS idx_messages_ticker ON messages(ticker);
CREATE INDEX IF NOT EXISTS idx_messages_original_timestamp ON messages(original_timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_parsed_type ON messages ((parsed_signal->>'type'));
CREATE INDEX IF NOT EXISTS idx_messages_parsed_ticker ON messages ((parsed_signal->>'ticker'));
`

// Migrate applies Schema against the pool. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
