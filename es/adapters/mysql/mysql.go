// Package mysql provides a MySQL/MariaDB adapter for the event store.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

// erDupEntry is ER_DUP_ENTRY.
const erDupEntry = 1062

// Dialect implements store.Dialect for MySQL and MariaDB.
type Dialect struct{}

var _ store.Dialect = Dialect{}

// Name implements store.Dialect.
func (Dialect) Name() string {
	return "mysql"
}

// Rebind implements store.Dialect. MySQL accepts '?' placeholders as is.
func (Dialect) Rebind(query string) string {
	return query
}

// Classify implements store.Dialect.
// The violated key is parsed from the message, e.g.
// "Duplicate entry 'orders-0' for key 'event_store_events_in_streams.uq_..._stream_position'".
// MySQL 8 qualifies the key with its table; MariaDB and MySQL 5.7 do not.
func (Dialect) Classify(err error, tables store.Tables) store.Violation {
	if err == nil {
		return store.ViolationNone
	}

	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != erDupEntry {
		return store.ViolationNone
	}

	key := duplicateKey(mysqlErr.Message)
	// Only the record table has a primary key that can collide.
	if key == "PRIMARY" {
		return store.ViolationDuplicateEvent
	}
	return store.ClassifyConstraint(key, tables)
}

func duplicateKey(msg string) string {
	const marker = "for key '"
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	key := msg[i+len(marker):]
	if j := strings.LastIndex(key, "'"); j >= 0 {
		key = key[:j]
	}
	return key
}

// VerifySchema implements store.Dialect against the connection's database.
func (Dialect) VerifySchema(ctx context.Context, db es.DBTX, tables store.Tables) error {
	return store.CheckSchema(ctx, tables, func(ctx context.Context, table string) (store.TableInfo, bool, error) {
		var info store.TableInfo

		rows, err := db.QueryContext(ctx, `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = DATABASE()
			  AND table_name = ?
		`, table)
		if err != nil {
			return info, false, err
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return info, false, err
			}
			info.Columns = append(info.Columns, name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return info, false, err
		}
		rows.Close()

		if len(info.Columns) == 0 {
			return info, false, nil
		}

		rows, err = db.QueryContext(ctx, `
			SELECT index_name, non_unique, column_name
			FROM information_schema.statistics
			WHERE table_schema = DATABASE()
			  AND table_name = ?
			ORDER BY index_name, seq_in_index
		`, table)
		if err != nil {
			return info, false, err
		}
		defer rows.Close()

		seen := make(map[string]bool)
		for rows.Next() {
			var index, column string
			var nonUnique int
			if err := rows.Scan(&index, &nonUnique, &column); err != nil {
				return info, false, err
			}
			if index == "PRIMARY" {
				info.PrimaryKey = append(info.PrimaryKey, column)
				continue
			}
			if nonUnique == 0 && !seen[index] {
				seen[index] = true
				info.UniqueIndexes = append(info.UniqueIndexes, index)
			}
		}
		return info, true, rows.Err()
	})
}

// Open opens a MySQL database from a go-sql-driver DSN.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// NewRepository creates an event store repository backed by db.
func NewRepository(ctx context.Context, db es.TxBeginner, opts ...sqlstore.Option) (*sqlstore.Repository, error) {
	return sqlstore.New(ctx, db, Dialect{}, opts...)
}
