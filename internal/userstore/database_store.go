package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseUserStore persists users using GORM over postgres or sqlite.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

type userRecord struct {
	ID            string `gorm:"column:id;primaryKey"`
	Email         string `gorm:"column:email;uniqueIndex;not null"`
	FirstName     string `gorm:"column:first_name;not null;default:''"`
	LastName      string `gorm:"column:last_name;not null;default:''"`
	AvatarURL     string `gorm:"column:avatar_url;not null;default:''"`
	TokenVersion  int64  `gorm:"column:token_version;not null;default:0"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

// NewDatabaseUserStore migrates the users table and wraps the connection.
func NewDatabaseUserStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*DatabaseUserStore, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseUserStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseUserStore) Driver() string {
	return store.driverLabel
}

// FindByEmail returns the user owning the email.
func (store *DatabaseUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" {
		return User{}, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, ErrEmailRequired)
	}
	var record userRecord
	findErr := store.db.WithContext(ctx).Where("email = ?", normalizedEmail).Take(&record).Error
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, findErr)
	}
	return record.toUser(), nil
}

// FindByID returns the user with the given identifier.
func (store *DatabaseUserStore) FindByID(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, ErrUserIDRequired)
	}
	var record userRecord
	findErr := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, findErr)
	}
	return record.toUser(), nil
}

// UpsertByEmail relies on the storage engine's conflict handling so that
// concurrent calls with the same email are absorbed instead of surfacing
// duplicate-key failures. The token version column is never part of the
// update assignment list.
func (store *DatabaseUserStore) UpsertByEmail(ctx context.Context, profile UpsertProfile) (User, error) {
	normalizedEmail := normalizeEmail(profile.Email)
	if normalizedEmail == "" {
		return User{}, fmt.Errorf("user_store.upsert.%s: %w", store.driverLabel, ErrEmailRequired)
	}
	nowUnix := time.Now().UTC().Unix()
	record := userRecord{
		ID:            uuid.NewString(),
		Email:         normalizedEmail,
		FirstName:     profile.FirstName,
		LastName:      profile.LastName,
		AvatarURL:     profile.AvatarURL,
		TokenVersion:  0,
		CreatedAtUnix: nowUnix,
		UpdatedAtUnix: nowUnix,
	}
	upsertErr := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "avatar_url", "updated_at_unix"}),
	}).Create(&record).Error
	if upsertErr != nil {
		return User{}, fmt.Errorf("user_store.upsert.%s: %w", store.driverLabel, upsertErr)
	}
	// Re-read to observe the surviving row: on conflict the generated ID and
	// token version above do not reflect the stored record.
	return store.FindByEmail(ctx, normalizedEmail)
}

// IncrementTokenVersion performs the increment as a single storage-side
// update so racing revocations cannot lose updates. The new value comes back
// via RETURNING in the same round trip.
func (store *DatabaseUserStore) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user_store.increment.%s: %w", store.driverLabel, ErrUserIDRequired)
	}
	var record userRecord
	result := store.db.WithContext(ctx).Model(&record).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "token_version"}}}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"token_version":   gorm.Expr("token_version + 1"),
			"updated_at_unix": time.Now().UTC().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("user_store.increment.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("user_store.increment.%s: %w", store.driverLabel, ErrUserNotFound)
	}
	return record.TokenVersion, nil
}

// Delete removes the user row.
func (store *DatabaseUserStore) Delete(ctx context.Context, userID string) error {
	result := store.db.WithContext(ctx).Where("id = ?", userID).Delete(&userRecord{})
	if result.Error != nil {
		return fmt.Errorf("user_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user_store.delete.%s: %w", store.driverLabel, ErrUserNotFound)
	}
	return nil
}

func (record userRecord) toUser() User {
	return User{
		ID:           record.ID,
		Email:        record.Email,
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		AvatarURL:    record.AvatarURL,
		TokenVersion: record.TokenVersion,
		CreatedAt:    time.Unix(record.CreatedAtUnix, 0).UTC(),
		UpdatedAt:    time.Unix(record.UpdatedAtUnix, 0).UTC(),
	}
}
