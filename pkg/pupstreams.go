// Package pupstreams provides a SQL-backed event store for Go applications.
//
// This package serves as the main entry point for the pupstreams library.
// For the event store itself, see the es package and its subpackages:
//
//	es                    - Core types, expected versions and logging
//	es/store              - Store interfaces, errors and dialects
//	es/store/sqlstore     - The shared SQL engine
//	es/adapters/postgres  - PostgreSQL dialect (pgx or lib/pq)
//	es/adapters/mysql     - MySQL dialect
//	es/adapters/sqlite    - SQLite dialect
//	es/projection         - Checkpointed projection processing
//	es/migrations         - Migration generation
//
// Quick Start:
//
//  1. Generate migrations:
//     go run github.com/getpup/pupstreams/cmd/migrate-gen -output migrations
//
//  2. Create a repository and append events:
//     repo, err := postgres.NewRepository(ctx, db)
//     err = repo.AppendToStream(ctx, events, "order-42", es.Auto())
//
//  3. Read them back:
//     events, err := repo.ReadEventsForward(ctx, "order-42", "", 100)
//
// See the examples directory for complete working examples.
package pupstreams

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
