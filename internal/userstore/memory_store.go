package userstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryUserStore is an in-memory store intended for tests and dev runs. It
// mirrors the durable stores behind the same contract.
type MemoryUserStore struct {
	mutex     sync.Mutex
	byID      map[string]User
	idByEmail map[string]string
	now       func() time.Time
}

// NewMemoryUserStore constructs an empty in-memory store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:      make(map[string]User),
		idByEmail: make(map[string]string),
		now:       time.Now,
	}
}

// FindByEmail returns the user owning the email.
func (store *MemoryUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" {
		return User{}, fmt.Errorf("user_store.find_by_email: %w", ErrEmailRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	userID, ok := store.idByEmail[normalizedEmail]
	if !ok {
		return User{}, fmt.Errorf("user_store.find_by_email: %w", ErrUserNotFound)
	}
	return store.byID[userID], nil
}

// FindByID returns the user with the given identifier.
func (store *MemoryUserStore) FindByID(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, fmt.Errorf("user_store.find_by_id: %w", ErrUserIDRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byID[userID]
	if !ok {
		return User{}, fmt.Errorf("user_store.find_by_id: %w", ErrUserNotFound)
	}
	return record, nil
}

// UpsertByEmail inserts or refreshes a user keyed on email. The token version
// of an existing user is never modified here.
func (store *MemoryUserStore) UpsertByEmail(ctx context.Context, profile UpsertProfile) (User, error) {
	normalizedEmail := normalizeEmail(profile.Email)
	if normalizedEmail == "" {
		return User{}, fmt.Errorf("user_store.upsert: %w", ErrEmailRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	nowTimestamp := store.now().UTC()
	if userID, ok := store.idByEmail[normalizedEmail]; ok {
		record := store.byID[userID]
		record.FirstName = profile.FirstName
		record.LastName = profile.LastName
		record.AvatarURL = profile.AvatarURL
		record.UpdatedAt = nowTimestamp
		store.byID[userID] = record
		return record, nil
	}

	record := User{
		ID:           uuid.NewString(),
		Email:        normalizedEmail,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		AvatarURL:    profile.AvatarURL,
		TokenVersion: 0,
		CreatedAt:    nowTimestamp,
		UpdatedAt:    nowTimestamp,
	}
	store.byID[record.ID] = record
	store.idByEmail[normalizedEmail] = record.ID
	return record, nil
}

// IncrementTokenVersion advances the counter under the store lock, which
// makes it linearizable with respect to concurrent reads and increments.
func (store *MemoryUserStore) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byID[userID]
	if !ok {
		return 0, fmt.Errorf("user_store.increment: %w", ErrUserNotFound)
	}
	record.TokenVersion++
	record.UpdatedAt = store.now().UTC()
	store.byID[userID] = record
	return record.TokenVersion, nil
}

// Delete removes the user. Missing users yield ErrUserNotFound.
func (store *MemoryUserStore) Delete(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("user_store.delete: %w", ErrUserNotFound)
	}
	delete(store.byID, userID)
	delete(store.idByEmail, record.Email)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
