package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skuznetsov/authcore/internal/sessionlog"
	"github.com/skuznetsov/authcore/internal/userstore"
)

// RotationPolicy names how a consumed refresh token is treated after a
// successful refresh.
type RotationPolicy string

const (
	// RotationNone keeps a consumed refresh token valid until its own expiry
	// or the next token version bump. The version counter is the sole
	// revocation mechanism.
	RotationNone RotationPolicy = "none"
)

// TokenPair is the result of one issuance: a short-lived access token and a
// longer-lived refresh token, both derived from the same user snapshot.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenService owns the refresh-token lifecycle: issuance, verification,
// and revocation against the persisted user record.
type TokenService struct {
	users      userstore.UserStore
	sessions   sessionlog.SessionStore
	codec      *TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotation   RotationPolicy
	logger     *zap.Logger
	metrics    MetricsRecorder
}

// NewTokenService wires the service with its collaborators.
func NewTokenService(users userstore.UserStore, sessions sessionlog.SessionStore, codec *TokenCodec, accessTTL time.Duration, refreshTTL time.Duration, logger *zap.Logger, metrics MetricsRecorder) *TokenService {
	if users == nil {
		panic("user store is required")
	}
	if codec == nil {
		panic("token codec is required")
	}
	if sessions == nil {
		sessions = sessionlog.NewMemorySessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &TokenService{
		users:      users,
		sessions:   sessions,
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		rotation:   RotationNone,
		logger:     logger,
		metrics:    metrics,
	}
}

// Rotation reports the active refresh rotation policy.
func (service *TokenService) Rotation() RotationPolicy {
	return service.rotation
}

// IssueTokens mints an access/refresh pair from the current snapshot of the
// user record. The refresh token embeds the user's token version as of now.
// The audit session record is best-effort: a session log failure is logged
// and does not block issuance.
func (service *TokenService) IssueTokens(ctx context.Context, user userstore.User, clientIP string) (TokenPair, error) {
	accessToken, accessExpiresAt, accessErr := service.codec.MintAccessToken(user.ID, user.Email, service.accessTTL)
	if accessErr != nil {
		return TokenPair{}, fmt.Errorf("token_service.issue: %w", accessErr)
	}
	refreshToken, refreshExpiresAt, refreshErr := service.codec.MintRefreshToken(user.ID, user.TokenVersion, service.refreshTTL)
	if refreshErr != nil {
		return TokenPair{}, fmt.Errorf("token_service.issue: %w", refreshErr)
	}

	if recordErr := service.sessions.RecordIssued(ctx, sessionlog.Session{
		UserID:           user.ID,
		RefreshTokenHash: sessionlog.HashRefreshToken(refreshToken),
		IPAddress:        clientIP,
		ExpiresAt:        refreshExpiresAt,
	}); recordErr != nil {
		service.logger.Warn("session audit record failed",
			zap.String("code", "token_service.issue.audit"),
			zap.String("user_id", user.ID),
			zap.Error(recordErr))
	}

	service.metrics.Increment("tokens.issued")
	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// RefreshTokens re-verifies a refresh token and, on success, issues a new
// pair from the freshly re-read user record. Trust requires all three of:
// codec verification, subject resolving to an existing user, and the embedded
// token version matching the user's current counter. Every trust failure
// collapses into ErrUnauthorized; storage failures surface separately as
// ErrStorageUnavailable.
func (service *TokenService) RefreshTokens(ctx context.Context, refreshTokenText string, clientIP string) (TokenPair, userstore.User, error) {
	claims, verifyErr := service.codec.VerifyRefreshToken(refreshTokenText)
	if verifyErr != nil {
		service.metrics.Increment("refresh.unauthorized")
		return TokenPair{}, userstore.User{}, fmt.Errorf("token_service.refresh: %w", ErrUnauthorized)
	}

	currentUser, findErr := service.users.FindByID(ctx, claims.Subject)
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) || errors.Is(findErr, userstore.ErrUserIDRequired) {
			service.metrics.Increment("refresh.unauthorized")
			return TokenPair{}, userstore.User{}, fmt.Errorf("token_service.refresh: %w", ErrUnauthorized)
		}
		service.logger.Error("user lookup failed during refresh",
			zap.String("code", "token_service.refresh.lookup"),
			zap.Error(findErr))
		return TokenPair{}, userstore.User{}, fmt.Errorf("token_service.refresh: %w", ErrStorageUnavailable)
	}

	if claims.TokenVersion != currentUser.TokenVersion {
		service.metrics.Increment("refresh.unauthorized")
		return TokenPair{}, userstore.User{}, fmt.Errorf("token_service.refresh: %w", ErrUnauthorized)
	}

	newPair, issueErr := service.IssueTokens(ctx, currentUser, clientIP)
	if issueErr != nil {
		return TokenPair{}, userstore.User{}, issueErr
	}
	service.metrics.Increment("refresh.success")
	return newPair, currentUser, nil
}

// RevokeAll advances the user's token version by exactly one, invalidating
// every refresh token issued before the call. Repeated calls keep moving the
// invalidation boundary forward. Audit records are flagged revoked
// afterwards; the flag carries no trust weight.
func (service *TokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	newVersion, incrementErr := service.users.IncrementTokenVersion(ctx, userID)
	if incrementErr != nil {
		if errors.Is(incrementErr, userstore.ErrUserNotFound) || errors.Is(incrementErr, userstore.ErrUserIDRequired) {
			return 0, fmt.Errorf("token_service.revoke_all: %w", ErrUserNotFound)
		}
		service.logger.Error("token version increment failed",
			zap.String("code", "token_service.revoke_all.increment"),
			zap.String("user_id", userID),
			zap.Error(incrementErr))
		return 0, fmt.Errorf("token_service.revoke_all: %w", ErrStorageUnavailable)
	}

	if _, flagErr := service.sessions.MarkAllRevoked(ctx, userID); flagErr != nil {
		service.logger.Warn("session audit revoke flag failed",
			zap.String("code", "token_service.revoke_all.audit"),
			zap.String("user_id", userID),
			zap.Error(flagErr))
	}

	service.metrics.Increment("revoke_all.success")
	service.logger.Info("all refresh tokens revoked",
		zap.String("user_id", userID),
		zap.Int64("token_version", newVersion))
	return newVersion, nil
}

// DeleteAccount removes the user record and then sweeps its audit sessions.
// The user row goes first so refresh attempts fail as soon as it is gone; a
// crash between the two steps leaves only orphaned audit rows.
func (service *TokenService) DeleteAccount(ctx context.Context, userID string) error {
	if deleteErr := service.users.Delete(ctx, userID); deleteErr != nil {
		if errors.Is(deleteErr, userstore.ErrUserNotFound) {
			return fmt.Errorf("token_service.delete_account: %w", ErrUserNotFound)
		}
		return fmt.Errorf("token_service.delete_account: %w", ErrStorageUnavailable)
	}
	if sweepErr := service.sessions.DeleteForUser(ctx, userID); sweepErr != nil {
		service.logger.Warn("session audit sweep failed",
			zap.String("code", "token_service.delete_account.audit"),
			zap.String("user_id", userID),
			zap.Error(sweepErr))
	}
	return nil
}
