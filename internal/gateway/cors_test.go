package gateway

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestSanitizeOriginsNormalizesAndDeduplicates(t *testing.T) {
	sanitized, sanitizeErr := sanitizeOrigins(zap.NewNop(), []string{
		"https://app.example.com",
		"HTTPS://app.example.com/",
		" https://admin.example.com ",
	})
	if sanitizeErr != nil {
		t.Fatalf("sanitize error: %v", sanitizeErr)
	}
	expected := []string{"https://admin.example.com", "https://app.example.com"}
	if !reflect.DeepEqual(sanitized, expected) {
		t.Fatalf("expected %v, got %v", expected, sanitized)
	}
}

func TestSanitizeOriginsRejectsWildcard(t *testing.T) {
	if _, err := sanitizeOrigins(zap.NewNop(), []string{"*"}); !errors.Is(err, errWildcardOrigin) {
		t.Fatalf("expected errWildcardOrigin, got %v", err)
	}
}

func TestSanitizeOriginsRejectsEmptyList(t *testing.T) {
	if _, err := sanitizeOrigins(zap.NewNop(), nil); !errors.Is(err, errEmptyAllowedOrigins) {
		t.Fatalf("expected errEmptyAllowedOrigins, got %v", err)
	}
	if _, err := sanitizeOrigins(zap.NewNop(), []string{"  ", ""}); !errors.Is(err, errEmptyAllowedOrigins) {
		t.Fatalf("expected errEmptyAllowedOrigins, got %v", err)
	}
}

func TestSanitizeOriginsRejectsMalformedOrigins(t *testing.T) {
	for _, origin := range []string{
		"app.example.com",
		"https://app.example.com/callback",
		"https://app.example.com?next=1",
		"ftp://app.example.com",
	} {
		if _, err := sanitizeOrigins(zap.NewNop(), []string{origin}); !errors.Is(err, errInvalidOrigin) {
			t.Fatalf("expected errInvalidOrigin for %q, got %v", origin, err)
		}
	}
}

func TestConfigureCORSBuildsMiddleware(t *testing.T) {
	middleware, configureErr := ConfigureCORS(zap.NewNop(), []string{"https://app.example.com"})
	if configureErr != nil {
		t.Fatalf("configure error: %v", configureErr)
	}
	if middleware == nil {
		t.Fatalf("expected a middleware handler")
	}
}
