package userstorepg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuznetsov/authcore/internal/userstore"
)

// PostgresUserStore persists users in PostgreSQL through a pgx pool with
// hand-written SQL. It implements the same contract as the GORM-backed store.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore constructs a Postgres store.
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

const userColumns = "id, email, first_name, last_name, avatar_url, token_version, created_at_unix, updated_at_unix"

// FindByEmail returns the user owning the email.
func (store *PostgresUserStore) FindByEmail(ctx context.Context, email string) (userstore.User, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" {
		return userstore.User{}, fmt.Errorf("user_store.find_by_email.pgx: %w", userstore.ErrEmailRequired)
	}
	row := store.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = $1
`, normalizedEmail)
	return scanUser(row, "user_store.find_by_email.pgx")
}

// FindByID returns the user with the given identifier.
func (store *PostgresUserStore) FindByID(ctx context.Context, userID string) (userstore.User, error) {
	if strings.TrimSpace(userID) == "" {
		return userstore.User{}, fmt.Errorf("user_store.find_by_id.pgx: %w", userstore.ErrUserIDRequired)
	}
	row := store.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = $1
`, userID)
	return scanUser(row, "user_store.find_by_id.pgx")
}

// UpsertByEmail inserts or refreshes a user in a single statement. ON
// CONFLICT keeps the stored ID and token version, so concurrent upserts with
// the same email converge on one row.
func (store *PostgresUserStore) UpsertByEmail(ctx context.Context, profile userstore.UpsertProfile) (userstore.User, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(profile.Email))
	if normalizedEmail == "" {
		return userstore.User{}, fmt.Errorf("user_store.upsert.pgx: %w", userstore.ErrEmailRequired)
	}
	nowUnix := time.Now().UTC().Unix()
	row := store.pool.QueryRow(ctx, `
INSERT INTO users (id, email, first_name, last_name, avatar_url, token_version, created_at_unix, updated_at_unix)
VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
ON CONFLICT (email) DO UPDATE SET
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    avatar_url = EXCLUDED.avatar_url,
    updated_at_unix = EXCLUDED.updated_at_unix
RETURNING `+userColumns+`
`, uuid.NewString(), normalizedEmail, profile.FirstName, profile.LastName, profile.AvatarURL, nowUnix)
	return scanUser(row, "user_store.upsert.pgx")
}

// IncrementTokenVersion advances the counter in one atomic statement and
// reads the new value back through RETURNING.
func (store *PostgresUserStore) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user_store.increment.pgx: %w", userstore.ErrUserIDRequired)
	}
	var newVersion int64
	row := store.pool.QueryRow(ctx, `
UPDATE users
SET token_version = token_version + 1, updated_at_unix = $2
WHERE id = $1
RETURNING token_version
`, userID, time.Now().UTC().Unix())
	if scanErr := row.Scan(&newVersion); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user_store.increment.pgx: %w", userstore.ErrUserNotFound)
		}
		return 0, fmt.Errorf("user_store.increment.pgx: %w", scanErr)
	}
	return newVersion, nil
}

// Delete removes the user row.
func (store *PostgresUserStore) Delete(ctx context.Context, userID string) error {
	commandTag, execErr := store.pool.Exec(ctx, `
DELETE FROM users
WHERE id = $1
`, userID)
	if execErr != nil {
		return fmt.Errorf("user_store.delete.pgx: %w", execErr)
	}
	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("user_store.delete.pgx: %w", userstore.ErrUserNotFound)
	}
	return nil
}

func scanUser(row pgx.Row, errPrefix string) (userstore.User, error) {
	var record userstore.User
	var createdAtUnix int64
	var updatedAtUnix int64
	scanErr := row.Scan(&record.ID, &record.Email, &record.FirstName, &record.LastName, &record.AvatarURL, &record.TokenVersion, &createdAtUnix, &updatedAtUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return userstore.User{}, fmt.Errorf("%s: %w", errPrefix, userstore.ErrUserNotFound)
		}
		return userstore.User{}, fmt.Errorf("%s: %w", errPrefix, scanErr)
	}
	record.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	record.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return record, nil
}
