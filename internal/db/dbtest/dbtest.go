// Package dbtest opens a migrated throwaway database for package tests.
// Open uses a pure-Go SQLite file so tests run without a Postgres instance.
// Its single pooled connection serializes transactions, so concurrent
// writers never race on a unique key there; OpenPostgres covers that.
package dbtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rhino-signals/backend/internal/db"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open returns a fresh migrated database that is closed when t finishes.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rhino.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	gdb, err := gorm.Open(sqlite.Open(dsn), db.GormConfig("test"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// OpenPostgres connects to TEST_DATABASE_URL and migrates a throwaway schema
// that is dropped when t finishes. The test is skipped when the variable is
// unset. Unlike Open, the pool allows concurrent transactions.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()

	base := os.Getenv("TEST_DATABASE_URL")
	if base == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	admin, err := gorm.Open(postgres.Open(base), db.GormConfig("test"))
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	adminSQL, err := admin.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	schema := "rhino_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	gdb, err := gorm.Open(postgres.Open(base+sep+"search_path="+schema), db.GormConfig("test"))
	if err != nil {
		t.Fatalf("open postgres schema: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)

	t.Cleanup(func() {
		_ = sqlDB.Close()
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = adminSQL.Close()
	})

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}
