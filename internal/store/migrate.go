package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations run in order at startup. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		refresh_token_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT users_email_key UNIQUE (email)
	)`,

	`CREATE TABLE IF NOT EXISTS guesses (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		direction TEXT NOT NULL CHECK (direction IN ('UP', 'DOWN')),
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'WON', 'LOST')),
		initial_price NUMERIC NOT NULL,
		final_price NUMERIC,
		created_at TIMESTAMPTZ NOT NULL,
		validated_at TIMESTAMPTZ,
		CONSTRAINT guesses_settlement_pair CHECK (
			(final_price IS NULL) = (validated_at IS NULL)
		)
	)`,

	// At most one PENDING guess per user; concurrent inserts race on this
	// index instead of on an application-level read-check.
	`CREATE UNIQUE INDEX IF NOT EXISTS guesses_one_pending_per_user
		ON guesses (user_id) WHERE status = 'PENDING'`,

	`CREATE INDEX IF NOT EXISTS guesses_overdue_idx
		ON guesses (created_at) WHERE status = 'PENDING'`,

	`CREATE TABLE IF NOT EXISTS scores (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		points BIGINT NOT NULL DEFAULT 0,
		wins BIGINT NOT NULL DEFAULT 0 CHECK (wins >= 0),
		losses BIGINT NOT NULL DEFAULT 0 CHECK (losses >= 0),
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the schema. Safe to run on every boot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
