// Package dbtest opens isolated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jordanlanch/leadscope/pkg/database"
)

var counter atomic.Int64

// Open returns a migrated in-memory SQLite client closed at test cleanup.
// A single connection is used so concurrent goroutines never see
// "database is locked" errors.
func Open(t testing.TB) *database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)

	client := &database.Client{DB: db, Dialect: database.SQLite}
	if err := client.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}
