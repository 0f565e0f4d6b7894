package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	client, err := New(context.Background(), config.DBConfig{Driver: config.DBDriverSQLite, DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.DB().AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return client
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	client := newTestClient(t)
	db := client.DB()
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: config.DBDriverSQLite}, nil); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestIsUniqueViolationDetectsSQLite(t *testing.T) {
	client := newTestClient(t)
	db := client.DB()
	if err := db.Create(&testModel{Name: "dup"}).Error; err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := db.Create(&testModel{Name: "dup"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(err, "some_other_index") {
		t.Fatal("constraint filter should not match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unrelated error must not match")
	}
}

func TestQueryLoggerReportsFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	ql := newQueryLogger(logg)

	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found should not log, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "INSERT broken", 0 }, errors.New("syntax error"))
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), "INSERT broken") {
		t.Fatalf("expected failed query entry, got %s", buf.String())
	}

	buf.Reset()
	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT slow", 3 }, nil)
	if !strings.Contains(buf.String(), "db.query_slow") {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT slow", 3 }, nil)
	if buf.Len() != 0 {
		t.Fatalf("silent mode should drop entries, got %s", buf.String())
	}
}

func TestIsUniqueViolationMatchesPostgresCodes(t *testing.T) {
	pgxErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_plan_purchases_payment_intent"})
	if !IsUniqueViolation(pgxErr, "") || !IsUniqueViolation(pgxErr, "idx_plan_purchases_payment_intent") {
		t.Fatal("pgx unique violation not detected")
	}
	if IsUniqueViolation(pgxErr, "idx_other") {
		t.Fatal("constraint filter should apply to pgx errors")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(&pq.Error{Code: "23505", Constraint: "plan_purchases_pkey"}, "plan_purchases_pkey") {
		t.Fatal("pq unique violation not detected")
	}
}
