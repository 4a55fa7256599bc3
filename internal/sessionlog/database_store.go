package sessionlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DatabaseSessionStore persists audit session records using GORM.
type DatabaseSessionStore struct {
	db          *gorm.DB
	driverLabel string
}

type sessionRecord struct {
	ID               string `gorm:"column:id;primaryKey"`
	UserID           string `gorm:"column:user_id;index;not null"`
	RefreshTokenHash string `gorm:"column:refresh_token_hash;uniqueIndex;not null"`
	Revoked          bool   `gorm:"column:revoked;not null;default:false"`
	IPAddress        string `gorm:"column:ip_address;not null;default:''"`
	IssuedAtUnix     int64  `gorm:"column:issued_at_unix;not null"`
	ExpiresAtUnix    int64  `gorm:"column:expires_at_unix;not null"`
}

func (sessionRecord) TableName() string {
	return "user_sessions"
}

// NewDatabaseSessionStore migrates the session table and wraps the connection.
func NewDatabaseSessionStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*DatabaseSessionStore, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&sessionRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("session_log.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseSessionStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// RecordIssued appends one audit record.
func (store *DatabaseSessionStore) RecordIssued(ctx context.Context, session Session) error {
	if strings.TrimSpace(session.UserID) == "" {
		return fmt.Errorf("session_log.record.%s: %w", store.driverLabel, ErrUserIDRequired)
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.IssuedAt.IsZero() {
		session.IssuedAt = time.Now().UTC()
	}
	record := sessionRecord{
		ID:               session.ID,
		UserID:           session.UserID,
		RefreshTokenHash: session.RefreshTokenHash,
		Revoked:          session.Revoked,
		IPAddress:        session.IPAddress,
		IssuedAtUnix:     session.IssuedAt.Unix(),
		ExpiresAtUnix:    session.ExpiresAt.Unix(),
	}
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		return fmt.Errorf("session_log.record.%s: %w", store.driverLabel, createErr)
	}
	return nil
}

// MarkAllRevoked flags every live record of the user in one update.
func (store *DatabaseSessionStore) MarkAllRevoked(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("session_log.mark_all_revoked.%s: %w", store.driverLabel, ErrUserIDRequired)
	}
	result := store.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("session_log.mark_all_revoked.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}

// ListByUser returns the user's audit records, oldest first.
func (store *DatabaseSessionStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("session_log.list.%s: %w", store.driverLabel, ErrUserIDRequired)
	}
	var records []sessionRecord
	findErr := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at_unix ASC").
		Find(&records).Error
	if findErr != nil {
		return nil, fmt.Errorf("session_log.list.%s: %w", store.driverLabel, findErr)
	}
	sessions := make([]Session, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, Session{
			ID:               record.ID,
			UserID:           record.UserID,
			RefreshTokenHash: record.RefreshTokenHash,
			Revoked:          record.Revoked,
			IPAddress:        record.IPAddress,
			IssuedAt:         time.Unix(record.IssuedAtUnix, 0).UTC(),
			ExpiresAt:        time.Unix(record.ExpiresAtUnix, 0).UTC(),
		})
	}
	return sessions, nil
}

// DeleteForUser removes every record owned by the user.
func (store *DatabaseSessionStore) DeleteForUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("session_log.delete_for_user.%s: %w", store.driverLabel, ErrUserIDRequired)
	}
	deleteErr := store.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&sessionRecord{}).Error
	if deleteErr != nil {
		return fmt.Errorf("session_log.delete_for_user.%s: %w", store.driverLabel, deleteErr)
	}
	return nil
}
