// Package dbtest opens throwaway sqlite stores shaped like production.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/migrate"
)

var seq atomic.Int64

// Open returns a migrated in-memory database private to the test. A single
// connection keeps sqlite writes serialized under concurrent callers.
func Open(t testing.TB) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))
	client, err := db.New(context.Background(), config.DBConfig{
		Driver:       config.DBDriverSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
	}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := migrate.AutoMigrateModels(client); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return client
}
