package sessionlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/skuznetsov/authcore/internal/storage"
)

func TestHashRefreshTokenIsStableAndOpaque(t *testing.T) {
	firstHash := HashRefreshToken("refresh-token-text")
	secondHash := HashRefreshToken("refresh-token-text")
	if firstHash != secondHash {
		t.Fatalf("expected a stable hash, got %q and %q", firstHash, secondHash)
	}
	if firstHash == "refresh-token-text" {
		t.Fatalf("hash must not echo the token text")
	}
	if otherHash := HashRefreshToken("other-token"); otherHash == firstHash {
		t.Fatalf("distinct tokens must not collide in tests")
	}
}

func exerciseSessionStore(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()

	if err := store.RecordIssued(ctx, Session{UserID: " "}); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("expected ErrUserIDRequired, got %v", err)
	}

	issuedAt := time.Unix(1700000000, 0).UTC()
	for index := 0; index < 3; index++ {
		if err := store.RecordIssued(ctx, Session{
			UserID:           "user-1",
			RefreshTokenHash: HashRefreshToken("token-" + string(rune('a'+index))),
			IPAddress:        "10.0.0.1",
			IssuedAt:         issuedAt.Add(time.Duration(index) * time.Minute),
			ExpiresAt:        issuedAt.Add(7 * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("record error: %v", err)
		}
	}
	if err := store.RecordIssued(ctx, Session{
		UserID:           "user-2",
		RefreshTokenHash: HashRefreshToken("token-z"),
		IssuedAt:         issuedAt,
		ExpiresAt:        issuedAt.Add(time.Hour),
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	ownedSessions, listErr := store.ListByUser(ctx, "user-1")
	if listErr != nil {
		t.Fatalf("list error: %v", listErr)
	}
	if len(ownedSessions) != 3 {
		t.Fatalf("expected 3 sessions for user-1, got %d", len(ownedSessions))
	}
	for _, ownedSession := range ownedSessions {
		if ownedSession.Revoked {
			t.Fatalf("expected freshly issued sessions to be live")
		}
		if ownedSession.ID == "" {
			t.Fatalf("expected a generated session id")
		}
	}

	flaggedCount, revokeErr := store.MarkAllRevoked(ctx, "user-1")
	if revokeErr != nil {
		t.Fatalf("revoke error: %v", revokeErr)
	}
	if flaggedCount != 3 {
		t.Fatalf("expected 3 flagged sessions, got %d", flaggedCount)
	}
	repeatCount, repeatErr := store.MarkAllRevoked(ctx, "user-1")
	if repeatErr != nil {
		t.Fatalf("revoke error: %v", repeatErr)
	}
	if repeatCount != 0 {
		t.Fatalf("expected repeat revoke to flag nothing, got %d", repeatCount)
	}

	revokedSessions, revokedListErr := store.ListByUser(ctx, "user-1")
	if revokedListErr != nil {
		t.Fatalf("list error: %v", revokedListErr)
	}
	for _, revokedSession := range revokedSessions {
		if !revokedSession.Revoked {
			t.Fatalf("expected every session flagged revoked")
		}
	}

	otherSessions, otherListErr := store.ListByUser(ctx, "user-2")
	if otherListErr != nil {
		t.Fatalf("list error: %v", otherListErr)
	}
	if len(otherSessions) != 1 || otherSessions[0].Revoked {
		t.Fatalf("expected user-2 sessions untouched")
	}

	if err := store.DeleteForUser(ctx, "user-1"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	remainingSessions, remainingErr := store.ListByUser(ctx, "user-1")
	if remainingErr != nil {
		t.Fatalf("list error: %v", remainingErr)
	}
	if len(remainingSessions) != 0 {
		t.Fatalf("expected no sessions after delete, got %d", len(remainingSessions))
	}
}

func TestMemorySessionStore(t *testing.T) {
	exerciseSessionStore(t, NewMemorySessionStore())
}

func TestDatabaseSessionStore(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "sessions.db")
	gormDB, driverLabel, openErr := storage.Open("sqlite://" + databasePath)
	if openErr != nil {
		t.Fatalf("open error: %v", openErr)
	}
	store, storeErr := NewDatabaseSessionStore(context.Background(), gormDB, driverLabel)
	if storeErr != nil {
		t.Fatalf("store construction error: %v", storeErr)
	}
	exerciseSessionStore(t, store)
}
