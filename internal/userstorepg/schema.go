package userstorepg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    token_version BIGINT NOT NULL DEFAULT 0,
    created_at_unix BIGINT NOT NULL,
    updated_at_unix BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users (email);
`)
	return err
}
