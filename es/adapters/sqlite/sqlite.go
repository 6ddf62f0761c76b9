// Package sqlite provides a SQLite adapter for the event store.
//
// It uses the pure Go modernc.org/sqlite driver, registered as "sqlite".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

// DriverName is the database/sql driver name registered by modernc.org/sqlite.
const DriverName = "sqlite"

const uniqueFailedPrefix = "UNIQUE constraint failed: "

// Dialect implements store.Dialect for SQLite.
type Dialect struct{}

var _ store.Dialect = Dialect{}

// Name implements store.Dialect.
func (Dialect) Name() string {
	return "sqlite"
}

// Rebind implements store.Dialect. SQLite accepts '?' placeholders as is.
func (Dialect) Rebind(query string) string {
	return query
}

// Classify implements store.Dialect.
// SQLite names the violated columns rather than the index, e.g.
// "UNIQUE constraint failed: event_store_events_in_streams.stream, event_store_events_in_streams.position".
func (Dialect) Classify(err error, tables store.Tables) store.Violation {
	if err == nil {
		return store.ViolationNone
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			if columns, ok := violatedColumns(sqliteErr.Error()); ok {
				return store.ClassifyColumns(columns, tables)
			}
			return store.ViolationPositionConflict
		case sqlite3lib.SQLITE_CONSTRAINT:
			if columns, ok := violatedColumns(sqliteErr.Error()); ok {
				return store.ClassifyColumns(columns, tables)
			}
			return store.ViolationNone
		default:
			return store.ViolationNone
		}
	}

	// Errors that lost their type on the way up still carry the message.
	if columns, ok := violatedColumns(err.Error()); ok {
		return store.ClassifyColumns(columns, tables)
	}
	return store.ViolationNone
}

// violatedColumns extracts the column list from a unique violation message.
func violatedColumns(msg string) (string, bool) {
	i := strings.Index(msg, uniqueFailedPrefix)
	if i < 0 {
		return "", false
	}
	columns := msg[i+len(uniqueFailedPrefix):]
	// modernc appends the extended result code: "... (2067)"
	if j := strings.Index(columns, " ("); j >= 0 {
		columns = columns[:j]
	}
	return strings.TrimSpace(columns), true
}

// VerifySchema implements store.Dialect using the pragma table-valued functions.
func (Dialect) VerifySchema(ctx context.Context, db es.DBTX, tables store.Tables) error {
	return store.CheckSchema(ctx, tables, func(ctx context.Context, table string) (store.TableInfo, bool, error) {
		var info store.TableInfo

		rows, err := db.QueryContext(ctx, `SELECT name, pk FROM pragma_table_info(?)`, table)
		if err != nil {
			return info, false, err
		}
		for rows.Next() {
			var name string
			var pk int
			if err := rows.Scan(&name, &pk); err != nil {
				rows.Close()
				return info, false, err
			}
			info.Columns = append(info.Columns, name)
			if pk > 0 {
				info.PrimaryKey = append(info.PrimaryKey, name)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return info, false, err
		}
		rows.Close()

		if len(info.Columns) == 0 {
			return info, false, nil
		}

		rows, err = db.QueryContext(ctx, `SELECT name, "unique" FROM pragma_index_list(?)`, table)
		if err != nil {
			return info, false, err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			var unique int
			if err := rows.Scan(&name, &unique); err != nil {
				return info, false, err
			}
			if unique == 1 {
				info.UniqueIndexes = append(info.UniqueIndexes, name)
			}
		}
		return info, true, rows.Err()
	})
}

// DSN builds a modernc.org/sqlite data source name for a database file with
// WAL journaling and a busy timeout.
func DSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Open opens a SQLite database file. SQLite allows a single writer, so the
// pool is limited to one connection.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewRepository creates an event store repository backed by db.
func NewRepository(ctx context.Context, db es.TxBeginner, opts ...sqlstore.Option) (*sqlstore.Repository, error) {
	return sqlstore.New(ctx, db, Dialect{}, opts...)
}
