package database

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		url     string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/wh?sslmode=disable", DialectPostgres, "postgres://u:p@localhost:5432/wh?sslmode=disable", false},
		{"postgresql://localhost/wh", DialectPostgres, "postgresql://localhost/wh", false},
		{"sqlite:///tmp/wh.db", DialectSQLite, "/tmp/wh.db", false},
		{"sqlite://", "", "", true},
		{"mysql://localhost/wh", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			dialect, dsn, err := ParseURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedURL) {
					t.Errorf("Expected ErrUnsupportedURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL returned error: %v", err)
			}
			if dialect != tt.dialect || dsn != tt.dsn {
				t.Errorf("ParseURL = %s %s, want %s %s", dialect, dsn, tt.dialect, tt.dsn)
			}
		})
	}
}

func TestRunMigrations_SQLite(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "warehouse.db")

	if err := RunMigrations(url); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}
	// Second run is a no-op
	if err := RunMigrations(url); err != nil {
		t.Fatalf("RunMigrations (second run) returned error: %v", err)
	}

	version, dirty, err := MigrationVersion(url)
	if err != nil {
		t.Fatalf("MigrationVersion returned error: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 false", version, dirty)
	}

	if err := RollbackMigration(url, 1); err != nil {
		t.Fatalf("RollbackMigration returned error: %v", err)
	}
	if version, _, _ := MigrationVersion(url); version != 0 {
		t.Errorf("version after rollback = %d, want 0", version)
	}
}
