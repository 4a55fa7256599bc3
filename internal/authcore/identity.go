package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skuznetsov/authcore/internal/userstore"
)

// ProviderProfile is the verified identity assertion handed over by the
// external provider handshake. Email is required and already verified.
type ProviderProfile struct {
	Email      string
	FirstName  string
	LastName   string
	PictureURL string
}

// IdentityNormalizer maps provider profiles to canonical user records.
type IdentityNormalizer struct {
	users  userstore.UserStore
	logger *zap.Logger
}

// NewIdentityNormalizer constructs a normalizer over the given store.
func NewIdentityNormalizer(users userstore.UserStore, logger *zap.Logger) *IdentityNormalizer {
	if users == nil {
		panic("user store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityNormalizer{
		users:  users,
		logger: logger,
	}
}

// ResolveUser upserts the profile keyed on email. An existing user keeps its
// identifier and token version; only display metadata is refreshed. A store
// failure surfaces as ErrStorageUnavailable, never as a partial user.
func (normalizer *IdentityNormalizer) ResolveUser(ctx context.Context, profile ProviderProfile) (userstore.User, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(profile.Email))
	if normalizedEmail == "" {
		return userstore.User{}, fmt.Errorf("identity.resolve: %w", ErrEmailRequired)
	}
	resolvedUser, upsertErr := normalizer.users.UpsertByEmail(ctx, userstore.UpsertProfile{
		Email:     normalizedEmail,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		AvatarURL: profile.PictureURL,
	})
	if upsertErr != nil {
		if errors.Is(upsertErr, userstore.ErrEmailRequired) {
			return userstore.User{}, fmt.Errorf("identity.resolve: %w", ErrEmailRequired)
		}
		normalizer.logger.Error("user upsert failed",
			zap.String("code", "identity.resolve.upsert"),
			zap.Error(upsertErr))
		return userstore.User{}, fmt.Errorf("identity.resolve: %w", ErrStorageUnavailable)
	}
	return resolvedUser, nil
}
