package userstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/skuznetsov/authcore/internal/storage"
)

func newSQLiteUserStore(t *testing.T) *DatabaseUserStore {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "users.db")
	gormDB, driverLabel, openErr := storage.Open("sqlite://" + databasePath)
	if openErr != nil {
		t.Fatalf("open error: %v", openErr)
	}
	if driverLabel != "sqlite" {
		t.Fatalf("expected sqlite driver label, got %q", driverLabel)
	}
	store, storeErr := NewDatabaseUserStore(context.Background(), gormDB, driverLabel)
	if storeErr != nil {
		t.Fatalf("store construction error: %v", storeErr)
	}
	return store
}

func TestDatabaseStoreUpsertCreateAndUpdate(t *testing.T) {
	store := newSQLiteUserStore(t)

	createdUser, createErr := store.UpsertByEmail(context.Background(), UpsertProfile{
		Email:     "A@X.com",
		FirstName: "Ada",
		AvatarURL: "https://example.com/a.png",
	})
	if createErr != nil {
		t.Fatalf("upsert error: %v", createErr)
	}
	if createdUser.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", createdUser.Email)
	}
	if createdUser.TokenVersion != 0 {
		t.Fatalf("expected token version 0, got %d", createdUser.TokenVersion)
	}

	updatedUser, updateErr := store.UpsertByEmail(context.Background(), UpsertProfile{
		Email:     "a@x.com",
		FirstName: "Adaline",
		LastName:  "Byron",
	})
	if updateErr != nil {
		t.Fatalf("upsert error: %v", updateErr)
	}
	if updatedUser.ID != createdUser.ID {
		t.Fatalf("expected conflict to keep the existing row, got ids %q and %q", createdUser.ID, updatedUser.ID)
	}
	if updatedUser.FirstName != "Adaline" || updatedUser.LastName != "Byron" {
		t.Fatalf("expected refreshed names, got %q %q", updatedUser.FirstName, updatedUser.LastName)
	}
}

func TestDatabaseStoreUpsertPreservesTokenVersion(t *testing.T) {
	store := newSQLiteUserStore(t)
	createdUser, createErr := store.UpsertByEmail(context.Background(), UpsertProfile{Email: "a@x.com"})
	if createErr != nil {
		t.Fatalf("upsert error: %v", createErr)
	}
	if _, err := store.IncrementTokenVersion(context.Background(), createdUser.ID); err != nil {
		t.Fatalf("increment error: %v", err)
	}

	updatedUser, updateErr := store.UpsertByEmail(context.Background(), UpsertProfile{Email: "a@x.com", FirstName: "Ada"})
	if updateErr != nil {
		t.Fatalf("upsert error: %v", updateErr)
	}
	if updatedUser.TokenVersion != 1 {
		t.Fatalf("expected token version 1 to survive the upsert, got %d", updatedUser.TokenVersion)
	}
}

func TestDatabaseStoreIncrementReturnsNewValue(t *testing.T) {
	store := newSQLiteUserStore(t)
	createdUser, createErr := store.UpsertByEmail(context.Background(), UpsertProfile{Email: "a@x.com"})
	if createErr != nil {
		t.Fatalf("upsert error: %v", createErr)
	}

	for expected := int64(1); expected <= 3; expected++ {
		newVersion, incrementErr := store.IncrementTokenVersion(context.Background(), createdUser.ID)
		if incrementErr != nil {
			t.Fatalf("increment error: %v", incrementErr)
		}
		if newVersion != expected {
			t.Fatalf("expected version %d, got %d", expected, newVersion)
		}
	}

	currentUser, findErr := store.FindByID(context.Background(), createdUser.ID)
	if findErr != nil {
		t.Fatalf("find error: %v", findErr)
	}
	if currentUser.TokenVersion != 3 {
		t.Fatalf("expected stored version 3, got %d", currentUser.TokenVersion)
	}
}

func TestDatabaseStoreIncrementMissingUser(t *testing.T) {
	store := newSQLiteUserStore(t)
	if _, err := store.IncrementTokenVersion(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.IncrementTokenVersion(context.Background(), "  "); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("expected ErrUserIDRequired, got %v", err)
	}
}

func TestDatabaseStoreFindMissing(t *testing.T) {
	store := newSQLiteUserStore(t)
	if _, err := store.FindByEmail(context.Background(), "nobody@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDatabaseStoreDelete(t *testing.T) {
	store := newSQLiteUserStore(t)
	createdUser, createErr := store.UpsertByEmail(context.Background(), UpsertProfile{Email: "a@x.com"})
	if createErr != nil {
		t.Fatalf("upsert error: %v", createErr)
	}

	if err := store.Delete(context.Background(), createdUser.ID); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, err := store.FindByID(context.Background(), createdUser.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), createdUser.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on repeat delete, got %v", err)
	}
}
