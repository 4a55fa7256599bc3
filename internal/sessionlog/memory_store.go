package sessionlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySessionStore is an in-memory session log intended for tests and dev.
type MemorySessionStore struct {
	mutex  sync.Mutex
	byID   map[string]Session
	byUser map[string][]string
}

// NewMemorySessionStore constructs an empty in-memory session log.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byID:   make(map[string]Session),
		byUser: make(map[string][]string),
	}
}

// RecordIssued appends one audit record.
func (store *MemorySessionStore) RecordIssued(ctx context.Context, session Session) error {
	if strings.TrimSpace(session.UserID) == "" {
		return fmt.Errorf("session_log.record: %w", ErrUserIDRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.IssuedAt.IsZero() {
		session.IssuedAt = time.Now().UTC()
	}
	store.byID[session.ID] = session
	store.byUser[session.UserID] = append(store.byUser[session.UserID], session.ID)
	return nil
}

// MarkAllRevoked flags every live record of the user.
func (store *MemorySessionStore) MarkAllRevoked(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("session_log.mark_all_revoked: %w", ErrUserIDRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var flagged int64
	for _, sessionID := range store.byUser[userID] {
		record, ok := store.byID[sessionID]
		if !ok || record.Revoked {
			continue
		}
		record.Revoked = true
		store.byID[sessionID] = record
		flagged++
	}
	return flagged, nil
}

// ListByUser returns the user's audit records, oldest first.
func (store *MemorySessionStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("session_log.list: %w", ErrUserIDRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	sessionIDs := store.byUser[userID]
	records := make([]Session, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		if record, ok := store.byID[sessionID]; ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// DeleteForUser removes every record owned by the user.
func (store *MemorySessionStore) DeleteForUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("session_log.delete_for_user: %w", ErrUserIDRequired)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, sessionID := range store.byUser[userID] {
		delete(store.byID, sessionID)
	}
	delete(store.byUser, userID)
	return nil
}
