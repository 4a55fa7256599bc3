package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

var (
	// ErrTokenMalformed indicates the token text could not be parsed.
	ErrTokenMalformed = errors.New("token_codec.malformed")
	// ErrTokenSignatureInvalid indicates the signature does not match the key.
	ErrTokenSignatureInvalid = errors.New("token_codec.invalid_signature")
	// ErrTokenExpired indicates the current time exceeds the encoded expiry.
	ErrTokenExpired = errors.New("token_codec.expired")
	// ErrTokenInvalid indicates a structurally valid token that fails a claim
	// check: wrong issuer, wrong token use, or an empty subject.
	ErrTokenInvalid = errors.New("token_codec.invalid")
	// ErrSigningKeyRequired indicates the codec was constructed without a key.
	ErrSigningKeyRequired = errors.New("token_codec.signing_key_required")
	// ErrIssuerRequired indicates the codec was constructed without an issuer.
	ErrIssuerRequired = errors.New("token_codec.issuer_required")
)

// AccessClaims are embedded in short-lived access tokens.
type AccessClaims struct {
	Email    string `json:"email"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// RefreshClaims are embedded in refresh tokens. TokenVersion is the snapshot
// of the user's revocation counter at issuance time.
type RefreshClaims struct {
	TokenVersion int64  `json:"token_version"`
	TokenUse     string `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies self-contained HS256 tokens. Verification
// performs no I/O; the outcome depends only on the token text, the signing
// key, and the injected clock.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	clock      Clock
}

// NewTokenCodec validates the key material and constructs a codec.
func NewTokenCodec(signingKey []byte, issuer string, clock Clock) (*TokenCodec, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("token_codec.new: %w", ErrSigningKeyRequired)
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("token_codec.new: %w", ErrIssuerRequired)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenCodec{
		signingKey: signingKey,
		issuer:     issuer,
		clock:      clock,
	}, nil
}

// MintAccessToken signs a short-lived token carrying the user id and email.
func (codec *TokenCodec) MintAccessToken(userID string, email string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("token_codec.mint_access: %w", ErrTokenInvalid)
	}
	issuedAt := codec.clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email:            email,
		TokenUse:         tokenUseAccess,
		RegisteredClaims: codec.registeredClaims(userID, issuedAt, expiresAt),
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token_codec.mint_access: %w", signErr)
	}
	return signed, expiresAt, nil
}

// MintRefreshToken signs a longer-lived token carrying the user id and the
// token version snapshot.
func (codec *TokenCodec) MintRefreshToken(userID string, tokenVersion int64, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("token_codec.mint_refresh: %w", ErrTokenInvalid)
	}
	issuedAt := codec.clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		TokenVersion:     tokenVersion,
		TokenUse:         tokenUseRefresh,
		RegisteredClaims: codec.registeredClaims(userID, issuedAt, expiresAt),
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token_codec.mint_refresh: %w", signErr)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken parses and verifies an access token.
func (codec *TokenCodec) VerifyAccessToken(tokenText string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := codec.verify(tokenText, claims, "token_codec.verify_access"); err != nil {
		return nil, err
	}
	if claims.TokenUse != tokenUseAccess {
		return nil, fmt.Errorf("token_codec.verify_access: %w", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyRefreshToken parses and verifies a refresh token.
func (codec *TokenCodec) VerifyRefreshToken(tokenText string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := codec.verify(tokenText, claims, "token_codec.verify_refresh"); err != nil {
		return nil, err
	}
	if claims.TokenUse != tokenUseRefresh {
		return nil, fmt.Errorf("token_codec.verify_refresh: %w", ErrTokenInvalid)
	}
	return claims, nil
}

func (codec *TokenCodec) verify(tokenText string, claims jwt.Claims, errPrefix string) error {
	if strings.TrimSpace(tokenText) == "" {
		return fmt.Errorf("%s: %w", errPrefix, ErrTokenMalformed)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenText, claims, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return codec.clock.Now()
	}))
	if parseErr != nil {
		switch {
		case errors.Is(parseErr, jwt.ErrTokenExpired):
			return fmt.Errorf("%s: %w", errPrefix, ErrTokenExpired)
		case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid):
			return fmt.Errorf("%s: %w", errPrefix, ErrTokenSignatureInvalid)
		case errors.Is(parseErr, jwt.ErrTokenMalformed):
			return fmt.Errorf("%s: %w", errPrefix, ErrTokenMalformed)
		default:
			return fmt.Errorf("%s: %w", errPrefix, ErrTokenInvalid)
		}
	}
	if parsedToken == nil || !parsedToken.Valid {
		return fmt.Errorf("%s: %w", errPrefix, ErrTokenInvalid)
	}
	issuerValue, issuerErr := claims.GetIssuer()
	if issuerErr != nil || issuerValue != codec.issuer {
		return fmt.Errorf("%s: %w", errPrefix, ErrTokenInvalid)
	}
	subjectValue, subjectErr := claims.GetSubject()
	if subjectErr != nil || strings.TrimSpace(subjectValue) == "" {
		return fmt.Errorf("%s: %w", errPrefix, ErrTokenInvalid)
	}
	return nil
}

func (codec *TokenCodec) registeredClaims(userID string, issuedAt time.Time, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    codec.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}
