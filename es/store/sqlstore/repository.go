// Package sqlstore implements the event store over database/sql.
//
// Engine-specific behavior (placeholder style, unique violation diagnostics,
// schema inspection) is delegated to a store.Dialect provided by an adapter.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/metrics"
	"github.com/getpup/pupstreams/es/store"
)

const tracerName = "github.com/getpup/pupstreams/es/store/sqlstore"

// maxRowsPerInsert bounds a single multi-row INSERT so that the number of bind
// parameters stays below every supported engine's limit.
const maxRowsPerInsert = 500

// Repository is a SQL-backed event store.
// It is safe for concurrent use; all coordination happens in the database.
type Repository struct {
	db      es.TxBeginner
	dialect store.Dialect
	config  Config
	tracer  trace.Tracer
}

// Ensure Repository implements the store contracts.
var _ store.EventStore = (*Repository)(nil)

// New creates a repository on db. Unless WithoutSchemaVerification is given,
// the dialect's schema verifier must pass or construction fails.
func New(ctx context.Context, db es.TxBeginner, dialect store.Dialect, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if dialect == nil {
		return nil, fmt.Errorf("dialect is required")
	}

	config := NewConfig(opts...)
	if err := config.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table configuration: %w", err)
	}

	if config.VerifySchema {
		if err := dialect.VerifySchema(ctx, db, config.Tables); err != nil {
			if config.Logger != nil {
				config.Logger.Error(ctx, "schema verification failed",
					"dialect", dialect.Name(),
					"error", err)
			}
			return nil, fmt.Errorf("%w: %v", store.ErrSchemaInvalid, err)
		}
	}

	return &Repository{
		db:      db,
		dialect: dialect,
		config:  config,
		tracer:  config.TracerProvider.Tracer(tracerName),
	}, nil
}

// Config returns the repository configuration.
func (r *Repository) Config() Config {
	return r.config
}

// Dialect returns the dialect the repository was built with.
func (r *Repository) Dialect() store.Dialect {
	return r.dialect
}

// AppendToStream implements store.Repository.
// Every event gets a record, a membership in stream and a membership in the
// global stream, all in one transaction.
func (r *Repository) AppendToStream(ctx context.Context, events []es.Event, stream string, expected es.ExpectedVersion) (err error) {
	ctx, finish := r.startWrite(ctx, metrics.OperationAppend, len(events),
		attribute.String("eventstore.stream", stream),
		attribute.String("eventstore.expected_version", expected.String()))
	defer func() { finish(err) }()

	if err := checkTarget(stream, expected); err != nil {
		return err
	}
	if len(events) == 0 {
		return store.ErrNoEvents
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "append starting",
			"stream", stream,
			"event_count", len(events),
			"expected_version", expected.String())
	}

	records := make([]es.Record, len(events))
	eventIDs := make([]string, len(events))
	for i := range events {
		record, mapErr := r.config.Mapper.ToRecord(events[i])
		if mapErr != nil {
			return fmt.Errorf("failed to map event %d: %w", i, mapErr)
		}
		if record.Data == nil {
			record.Data = []byte{}
		}
		records[i] = record
		eventIDs[i] = record.EventID
	}

	return r.addToStream(ctx, stream, expected, eventIDs, true, func(ctx context.Context, tx *sql.Tx) error {
		return r.insertRecords(ctx, tx, stream, records)
	})
}

// LinkToStream implements store.Repository.
// Linked events must already exist; no records are created.
func (r *Repository) LinkToStream(ctx context.Context, eventIDs []string, stream string, expected es.ExpectedVersion) (err error) {
	ctx, finish := r.startWrite(ctx, metrics.OperationLink, len(eventIDs),
		attribute.String("eventstore.stream", stream),
		attribute.String("eventstore.expected_version", expected.String()))
	defer func() { finish(err) }()

	if err := checkTarget(stream, expected); err != nil {
		return err
	}
	if len(eventIDs) == 0 {
		return store.ErrNoEvents
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "link starting",
			"stream", stream,
			"event_count", len(eventIDs),
			"expected_version", expected.String())
	}

	// Every record already has its global membership.
	if es.IsGlobalStream(stream) {
		return r.checkEventsExist(ctx, r.db, eventIDs)
	}

	return r.addToStream(ctx, stream, expected, eventIDs, false, func(ctx context.Context, tx *sql.Tx) error {
		return r.checkEventsExist(ctx, tx, eventIDs)
	})
}

// addToStream runs the shared append/link transaction. prepare runs after the
// version is resolved and before any membership row is written.
func (r *Repository) addToStream(
	ctx context.Context,
	stream string,
	expected es.ExpectedVersion,
	eventIDs []string,
	withGlobal bool,
	prepare func(ctx context.Context, tx *sql.Tx) error,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	//nolint:errcheck // Rollback after Commit is a no-op
	defer tx.Rollback()

	version, err := r.resolveVersion(ctx, tx, expected, stream)
	if err != nil {
		if r.config.Logger != nil && errors.Is(err, store.ErrWrongExpectedEventVersion) {
			r.config.Logger.Error(ctx, "expected version mismatch",
				"stream", stream,
				"expected_version", expected.String())
		}
		return err
	}

	if r.config.Logger != nil {
		if version.any {
			r.config.Logger.Debug(ctx, "version resolved",
				"stream", stream,
				"positions", "none")
		} else {
			r.config.Logger.Debug(ctx, "version resolved",
				"stream", stream,
				"base_version", version.base,
				"next_position", version.position(0).Int64)
		}
	}

	if err := prepare(ctx, tx); err != nil {
		return err
	}

	if !es.IsGlobalStream(stream) {
		rows := make([][]any, len(eventIDs))
		for i, id := range eventIDs {
			rows[i] = []any{stream, version.position(i), id}
		}
		if err := r.insertRows(ctx, tx, r.config.Tables.Streams, []string{"stream", "position", "event_id"}, rows); err != nil {
			return r.writeError(ctx, err, stream, "stream memberships")
		}
	}

	if withGlobal {
		rows := make([][]any, len(eventIDs))
		for i, id := range eventIDs {
			rows[i] = []any{id}
		}
		if err := r.insertRows(ctx, tx, r.config.Tables.Global, []string{"event_id"}, rows); err != nil {
			return r.writeError(ctx, err, stream, "global memberships")
		}
	}

	if err := tx.Commit(); err != nil {
		return r.writeError(ctx, err, stream, "transaction commit")
	}

	if r.config.Logger != nil {
		if version.any {
			r.config.Logger.Info(ctx, "events added to stream",
				"stream", stream,
				"event_count", len(eventIDs),
				"global", withGlobal)
		} else {
			r.config.Logger.Info(ctx, "events added to stream",
				"stream", stream,
				"event_count", len(eventIDs),
				"global", withGlobal,
				"position_range", fmt.Sprintf("%d-%d", version.position(0).Int64, version.position(len(eventIDs)-1).Int64))
		}
	}

	return nil
}

// DeleteStream implements store.Repository.
// Only memberships are removed; records and other streams are untouched.
// The global stream cannot be deleted: projection checkpoints point into it.
func (r *Repository) DeleteStream(ctx context.Context, stream string) (err error) {
	ctx, finish := r.startWrite(ctx, metrics.OperationDelete, 0,
		attribute.String("eventstore.stream", stream))
	defer func() { finish(err) }()

	if stream == "" {
		return store.ErrIncorrectStreamData
	}
	if es.IsGlobalStream(stream) {
		return fmt.Errorf("%w: the global stream %q cannot be deleted", store.ErrIncorrectStreamData, stream)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE stream = ?`, r.config.Tables.Streams)
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), stream)
	if err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}

	if r.config.Logger != nil {
		removed, _ := result.RowsAffected()
		r.config.Logger.Info(ctx, "stream deleted",
			"stream", stream,
			"memberships_removed", removed)
	}

	return nil
}

func (r *Repository) insertRecords(ctx context.Context, tx *sql.Tx, stream string, records []es.Record) error {
	rows := make([][]any, len(records))
	for i := range records {
		rec := &records[i]
		rows[i] = []any{rec.EventID, rec.EventType, rec.Data, rec.Metadata}
	}
	if err := r.insertRows(ctx, tx, r.config.Tables.Records, []string{"id", "event_type", "data", "metadata"}, rows); err != nil {
		return r.writeError(ctx, err, stream, "event records")
	}
	return nil
}

// checkEventsExist fails with the first id, in input order, that has no record.
func (r *Repository) checkEventsExist(ctx context.Context, db es.DBTX, eventIDs []string) error {
	found := make(map[string]struct{}, len(eventIDs))
	for start := 0; start < len(eventIDs); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(eventIDs))
		chunk := eventIDs[start:end]

		query := fmt.Sprintf(`SELECT id FROM %s WHERE id IN (%s)`,
			r.config.Tables.Records, placeholders(len(chunk)))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := db.QueryContext(ctx, r.dialect.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to check event existence: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan event id: %w", err)
			}
			found[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("rows error: %w", err)
		}
		rows.Close()
	}

	for _, id := range eventIDs {
		if _, ok := found[id]; !ok {
			if r.config.Logger != nil {
				r.config.Logger.Error(ctx, "linked event not found", "event_id", id)
			}
			return &store.EventNotFoundError{EventID: id}
		}
	}
	return nil
}

// insertRows writes rows with as few multi-row INSERT statements as possible.
func (r *Repository) insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(rows))
		chunk := rows[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
		args := make([]any, 0, len(chunk)*len(columns))
		group := "(" + placeholders(len(columns)) + ")"
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(group)
			args = append(args, row...)
		}

		if _, err := tx.ExecContext(ctx, r.dialect.Rebind(b.String()), args...); err != nil {
			return err
		}
	}
	return nil
}

// writeError translates unique violations into the store's error taxonomy.
func (r *Repository) writeError(ctx context.Context, err error, stream, what string) error {
	violation := r.dialect.Classify(err, r.config.Tables)
	if violation == store.ViolationNone {
		return fmt.Errorf("failed to insert %s: %w", what, err)
	}

	if r.config.Logger != nil {
		r.config.Logger.Error(ctx, "unique constraint violated",
			"stream", stream,
			"violation", violation.String(),
			"error", err)
	}
	return violation.Err()
}

// startWrite opens a span for a write operation and returns the function
// that closes it and records metrics.
func (r *Repository) startWrite(ctx context.Context, operation string, count int, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	attrs = append(attrs,
		attribute.String("db.system", r.dialect.Name()),
		attribute.Int("eventstore.event_count", count))
	ctx, span := r.tracer.Start(ctx, "eventstore."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.config.Metrics.ObserveWrite(operation, err, count, time.Since(started))
	}
}

// startRead opens a span for a read operation.
func (r *Repository) startRead(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("db.system", r.dialect.Name()))
	ctx, span := r.tracer.Start(ctx, "eventstore."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
