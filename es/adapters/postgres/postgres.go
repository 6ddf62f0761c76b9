// Package postgres provides a PostgreSQL adapter for the event store.
//
// Both github.com/jackc/pgx/v5 (through its database/sql driver, "pgx") and
// github.com/lib/pq ("postgres") are supported; unique violations raised by
// either driver are classified.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

// Driver names accepted by Open.
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Dialect implements store.Dialect for PostgreSQL.
type Dialect struct{}

var _ store.Dialect = Dialect{}

// Name implements store.Dialect.
func (Dialect) Name() string {
	return "postgres"
}

// Rebind implements store.Dialect by numbering placeholders: $1, $2, ...
// Question marks inside single-quoted literals are left alone.
func (Dialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)

	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Classify implements store.Dialect.
func (Dialect) Classify(err error, tables store.Tables) store.Violation {
	if err == nil {
		return store.ViolationNone
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != uniqueViolation {
			return store.ViolationNone
		}
		return store.ClassifyConstraint(pgErr.ConstraintName, tables)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != uniqueViolation {
			return store.ViolationNone
		}
		return store.ClassifyConstraint(pqErr.Constraint, tables)
	}

	return store.ViolationNone
}

// VerifySchema implements store.Dialect against the current schema.
func (d Dialect) VerifySchema(ctx context.Context, db es.DBTX, tables store.Tables) error {
	return store.CheckSchema(ctx, tables, func(ctx context.Context, table string) (store.TableInfo, bool, error) {
		var info store.TableInfo

		var relationName sql.NullString
		if err := db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&relationName); err != nil {
			return info, false, err
		}
		if !relationName.Valid || strings.TrimSpace(relationName.String) == "" {
			return info, false, nil
		}

		var err error
		info.Columns, err = queryStrings(ctx, db, `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = current_schema()
			  AND table_name = $1
		`, table)
		if err != nil {
			return info, false, err
		}

		info.PrimaryKey, err = queryStrings(ctx, db, `
			SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON kcu.constraint_name = tc.constraint_name
			 AND kcu.table_schema = tc.table_schema
			WHERE tc.table_schema = current_schema()
			  AND tc.table_name = $1
			  AND tc.constraint_type = 'PRIMARY KEY'
		`, table)
		if err != nil {
			return info, false, err
		}

		info.UniqueIndexes, err = queryStrings(ctx, db, `
			SELECT indexname
			FROM pg_indexes
			WHERE schemaname = current_schema()
			  AND tablename = $1
			  AND indexdef LIKE 'CREATE UNIQUE INDEX%'
		`, table)
		if err != nil {
			return info, false, err
		}

		return info, true, nil
	})
}

func queryStrings(ctx context.Context, db es.DBTX, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Open opens a PostgreSQL database with the given driver (DriverPgx or DriverPQ).
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPgx, DriverPQ:
	case "":
		driver = DriverPgx
	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	return db, nil
}

// NewRepository creates an event store repository backed by db.
func NewRepository(ctx context.Context, db es.TxBeginner, opts ...sqlstore.Option) (*sqlstore.Repository, error) {
	return sqlstore.New(ctx, db, Dialect{}, opts...)
}
