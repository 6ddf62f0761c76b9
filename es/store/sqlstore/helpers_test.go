package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/adapters/sqlite"
	"github.com/getpup/pupstreams/es/migrations"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepository(t *testing.T, opts ...sqlstore.Option) (*sqlstore.Repository, *sql.DB) {
	t.Helper()

	ctx := context.Background()
	db := openTestDB(t)

	config := migrations.DefaultConfig()
	if err := migrations.Apply(ctx, db, migrations.AdapterSQLite, &config); err != nil {
		t.Fatalf("Failed to apply migration: %v", err)
	}

	repo, err := sqlite.NewRepository(ctx, db, opts...)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	return repo, db
}

func newEvents(prefix string, n int) []es.Event {
	events := make([]es.Event, n)
	for i := range events {
		events[i] = es.Event{
			EventID:   fmt.Sprintf("%s-%d", prefix, i),
			EventType: "TestEvent",
			Data:      map[string]any{"n": i},
			Metadata:  map[string]any{"prefix": prefix},
		}
	}
	return events
}

func eventIDs(events []es.Event) []string {
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].EventID
	}
	return ids
}

func mustAppend(t *testing.T, repo *sqlstore.Repository, stream string, expected es.ExpectedVersion, events []es.Event) {
	t.Helper()
	if err := repo.AppendToStream(context.Background(), events, stream, expected); err != nil {
		t.Fatalf("AppendToStream(%s) failed: %v", stream, err)
	}
}

// positions returns the positions of stream's memberships in insertion order.
// Null positions are reported as -1.
func positions(t *testing.T, db *sql.DB, stream string) []int64 {
	t.Helper()

	tables := store.DefaultTables()
	rows, err := db.Query(fmt.Sprintf(`SELECT position FROM %s WHERE stream = ? ORDER BY id`, tables.Streams), stream)
	if err != nil {
		t.Fatalf("Failed to query positions: %v", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var p sql.NullInt64
		if err := rows.Scan(&p); err != nil {
			t.Fatalf("Failed to scan position: %v", err)
		}
		if p.Valid {
			result = append(result, p.Int64)
		} else {
			result = append(result, -1)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows error: %v", err)
	}
	return result
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	return n
}

func countMemberships(t *testing.T, db *sql.DB) (named, global int) {
	t.Helper()
	tables := store.DefaultTables()
	named = countRows(t, db, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tables.Streams))
	global = countRows(t, db, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tables.Global))
	return named, global
}
