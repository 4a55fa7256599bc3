package authcore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var (
	// ErrInvalidGoogleIssuer indicates the ID token was not issued by Google.
	ErrInvalidGoogleIssuer = errors.New("google_identity.invalid_issuer")
	// ErrUnverifiedIdentity indicates the payload lacks a verified email or subject.
	ErrUnverifiedIdentity = errors.New("google_identity.unverified")
)

// GoogleTokenValidator verifies a Google ID token against an audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, idTokenText string, audience string) (*idtoken.Payload, error)
}

type googleTokenValidator struct {
	validator *idtoken.Validator
}

// NewGoogleTokenValidator constructs a validator backed by Google's JWKS.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	validator, validatorErr := idtoken.NewValidator(ctx)
	if validatorErr != nil {
		return nil, fmt.Errorf("google_identity.new_validator: %w", validatorErr)
	}
	return &googleTokenValidator{validator: validator}, nil
}

func (wrapper *googleTokenValidator) Validate(ctx context.Context, idTokenText string, audience string) (*idtoken.Payload, error) {
	return wrapper.validator.Validate(ctx, idTokenText, audience)
}

// ProfileFromGooglePayload extracts a normalized provider profile from a
// validated Google ID token payload. The payload must carry a Google issuer,
// a subject, and a verified email.
func ProfileFromGooglePayload(payload *idtoken.Payload) (ProviderProfile, error) {
	if payload == nil {
		return ProviderProfile{}, fmt.Errorf("google_identity.profile: %w", ErrUnverifiedIdentity)
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		return ProviderProfile{}, fmt.Errorf("google_identity.profile: %w", ErrInvalidGoogleIssuer)
	}
	googleSub, _ := payload.Claims["sub"].(string)
	userEmail, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if googleSub == "" || userEmail == "" || !emailVerified {
		return ProviderProfile{}, fmt.Errorf("google_identity.profile: %w", ErrUnverifiedIdentity)
	}
	firstName, _ := payload.Claims["given_name"].(string)
	lastName, _ := payload.Claims["family_name"].(string)
	pictureURL, _ := payload.Claims["picture"].(string)
	return ProviderProfile{
		Email:      userEmail,
		FirstName:  firstName,
		LastName:   lastName,
		PictureURL: pictureURL,
	}, nil
}
