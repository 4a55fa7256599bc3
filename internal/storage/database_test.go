package storage

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"
)

func TestOpenRejectsEmptyURL(t *testing.T) {
	if _, _, err := Open("   "); err == nil {
		t.Fatalf("expected an error for an empty database url")
	}
}

func TestOpenRejectsUnsupportedScheme(t *testing.T) {
	if _, _, err := Open("mysql://localhost/app"); !errors.Is(err, ErrUnsupportedDialect) {
		t.Fatalf("expected ErrUnsupportedDialect, got %v", err)
	}
}

func TestOpenRejectsSchemelessURL(t *testing.T) {
	if _, _, err := Open("just-a-path"); err == nil {
		t.Fatalf("expected an error for a schemeless url")
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "app.db")
	gormDB, driverLabel, openErr := Open("sqlite://" + databasePath)
	if openErr != nil {
		t.Fatalf("open error: %v", openErr)
	}
	if driverLabel != "sqlite" {
		t.Fatalf("expected driver label sqlite, got %q", driverLabel)
	}
	if gormDB == nil {
		t.Fatalf("expected a connection")
	}
}

func TestBuildSQLiteDSNForms(t *testing.T) {
	testCases := []struct {
		name        string
		databaseURL string
		expectedDSN string
	}{
		{name: "opaque path", databaseURL: "sqlite:app.db", expectedDSN: "app.db"},
		{name: "absolute path", databaseURL: "sqlite:///var/lib/app.db", expectedDSN: "/var/lib/app.db"},
		{name: "query carried over", databaseURL: "sqlite:app.db?cache=shared", expectedDSN: "app.db?cache=shared"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			parsed, parseErr := url.Parse(testCase.databaseURL)
			if parseErr != nil {
				t.Fatalf("parse error: %v", parseErr)
			}
			dsn, dsnErr := buildSQLiteDSN(parsed)
			if dsnErr != nil {
				t.Fatalf("dsn error: %v", dsnErr)
			}
			if dsn != testCase.expectedDSN {
				t.Fatalf("expected dsn %q, got %q", testCase.expectedDSN, dsn)
			}
		})
	}
}

func TestBuildSQLiteDSNRejectsEmptyPath(t *testing.T) {
	parsed, parseErr := url.Parse("sqlite://")
	if parseErr != nil {
		t.Fatalf("parse error: %v", parseErr)
	}
	if _, err := buildSQLiteDSN(parsed); err == nil {
		t.Fatalf("expected an error for an empty sqlite path")
	}
}
