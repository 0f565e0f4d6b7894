package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "add_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateDirRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_x.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestCreateSQLMigrationSanitizesAndRefusesDuplicates(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, " Add Plan-Purchase Notes ", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260304050607_add_plan_purchase_notes.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "-- +goose Up") {
		t.Fatalf("template missing goose header: %s", body)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration fails validation: %v", err)
	}
	if _, err := createSQLMigrationAt(dir, "add plan purchase notes", now); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "!!!"); err == nil {
		t.Fatal("expected error for name that sanitizes to empty")
	}
}

func TestValidateEmbeddedMatchesDisk(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations failed validation: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	entries, err := embedded.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	if len(entries) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(entries), len(onDisk))
	}
}

func TestSlugify(t *testing.T) {
	for in, want := range map[string]string{
		" Add Plan-Purchase Notes ": "add_plan_purchase_notes",
		"owners__index":             "owners_index",
		"café crème":                "caf_cr_me",
		"!!!":                       "",
	} {
		if got := slugify(in); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrateToVersionRejectsMalformedVersion(t *testing.T) {
	for _, v := range []string{"", "2026", "abcdefghijklmn"} {
		if err := MigrateToVersion(context.Background(), nil, DefaultDir, v); err == nil || !strings.Contains(err.Error(), "digits") {
			t.Fatalf("version %q: expected format error, got %v", v, err)
		}
	}
}
