// Package migrate applies the goose SQL migrations that define the
// properties and plan_purchases tables. The shipped files are embedded so
// the binaries migrate without a checkout on disk.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the shipped migrations live relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// source resolves dir to a filesystem: DefaultDir maps to the embedded copy
// so a deployed binary needs no files; anything else is read from disk.
func source(dir string) (fs.FS, string, error) {
	if dir == "" {
		return nil, "", errors.New("migrations dir is required")
	}
	if filepath.Clean(dir) == DefaultDir {
		if _, err := os.Stat(dir); err != nil {
			return embedded, "migrations", nil
		}
	}
	return os.DirFS(dir), ".", nil
}

func withGoose(db *sql.DB, dir string, fn func(dir string) error) error {
	if db == nil {
		return errors.New("db is required")
	}
	fsys, root, err := source(dir)
	if err != nil {
		return err
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return fn(root)
}

// Run executes a goose command such as up, down or status.
func Run(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	return withGoose(db, dir, func(root string) error {
		if err := goose.RunContext(ctx, command, db, root, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateToVersion moves the schema up or down until it sits at version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || len(version) != len(versionLayout) {
		return fmt.Errorf("version %q must be %s digits", version, versionLayout)
	}
	return withGoose(db, dir, func(root string) error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		switch {
		case current < target:
			err = goose.UpToContext(ctx, db, root, target)
		case current > target:
			err = goose.DownToContext(ctx, db, root, target)
		}
		if err != nil {
			return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
		}
		return nil
	})
}
