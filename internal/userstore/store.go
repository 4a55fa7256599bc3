package userstore

import (
	"context"
	"time"
)

// User is the durable account record. TokenVersion is the per-user revocation
// counter: advancing it invalidates every refresh token minted against an
// earlier value.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	AvatarURL    string
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertProfile carries the provider-verified fields used to create or
// refresh a user keyed on email.
type UpsertProfile struct {
	Email     string
	FirstName string
	LastName  string
	AvatarURL string
}

// UserStore persists users and their token version counters. Reads used for
// trust decisions must reflect the latest committed write; implementations
// must not cache TokenVersion.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, userID string) (User, error)
	// UpsertByEmail inserts a user with TokenVersion zero, or refreshes the
	// display fields of an existing user without touching TokenVersion.
	// Concurrent calls with the same email leave exactly one user.
	UpsertByEmail(ctx context.Context, profile UpsertProfile) (User, error)
	// IncrementTokenVersion atomically advances the counter by one and
	// returns the new value. The increment is a single storage-side update,
	// never an application-level read-modify-write.
	IncrementTokenVersion(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID string) error
}
