// Package sessionlog records issued refresh tokens for auditing and session
// enumeration. The records are never consulted for trust decisions; the
// per-user token version counter is the sole revocation mechanism.
package sessionlog

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound indicates no session record matched the identifier.
	ErrSessionNotFound = errors.New("session_log.not_found")
	// ErrUserIDRequired indicates an operation was attempted with an empty user ID.
	ErrUserIDRequired = errors.New("session_log.user_id_required")
)

// Session is one audit record of an issued refresh token. Only a hash of the
// token is stored, never the token itself.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	Revoked          bool
	IPAddress        string
	IssuedAt         time.Time
	ExpiresAt        time.Time
}

// SessionStore persists audit session records.
type SessionStore interface {
	RecordIssued(ctx context.Context, session Session) error
	// MarkAllRevoked flags every live record of the user and returns the
	// number of records flagged. Repeated calls are harmless.
	MarkAllRevoked(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	// DeleteForUser removes every record owned by the user. The records are
	// owned by the user and do not outlive it.
	DeleteForUser(ctx context.Context, userID string) error
}

// HashRefreshToken derives the at-rest fingerprint of a refresh token.
func HashRefreshToken(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
