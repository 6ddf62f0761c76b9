package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
)

type direction int

const (
	forward direction = iota
	backward
)

func (d direction) String() string {
	if d == backward {
		return "backward"
	}
	return "forward"
}

// HasEvent implements store.Reader.
func (r *Repository) HasEvent(ctx context.Context, eventID string) (_ bool, err error) {
	ctx, finish := r.startRead(ctx, "has_event", attribute.String("eventstore.event_id", eventID))
	defer func() { finish(err) }()

	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, r.config.Tables.Records)

	var one int
	err = r.db.QueryRowContext(ctx, r.dialect.Rebind(query), eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return true, nil
}

// ReadEvent implements store.Reader.
func (r *Repository) ReadEvent(ctx context.Context, eventID string) (_ es.Event, err error) {
	ctx, finish := r.startRead(ctx, "read_event", attribute.String("eventstore.event_id", eventID))
	defer func() { finish(err) }()

	query := fmt.Sprintf(`
		SELECT id, event_type, data, metadata
		FROM %s
		WHERE id = ?
	`, r.config.Tables.Records)

	var rec es.Record
	err = r.db.QueryRowContext(ctx, r.dialect.Rebind(query), eventID).
		Scan(&rec.EventID, &rec.EventType, &rec.Data, &rec.Metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return es.Event{}, &store.EventNotFoundError{EventID: eventID}
	}
	if err != nil {
		return es.Event{}, fmt.Errorf("failed to read event: %w", err)
	}

	event, err := r.config.Mapper.ToDomainEvent(rec)
	if err != nil {
		return es.Event{}, fmt.Errorf("failed to map event %s: %w", rec.EventID, err)
	}
	return event, nil
}

// LastStreamEvent implements store.Reader.
// Returns nil when the stream has no events.
func (r *Repository) LastStreamEvent(ctx context.Context, stream string) (*es.Event, error) {
	events, err := r.ReadEventsBackward(ctx, stream, "", 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// ReadEventsForward implements store.Reader.
func (r *Repository) ReadEventsForward(ctx context.Context, stream, cursorEventID string, count int) ([]es.Event, error) {
	if count <= 0 {
		return nil, store.ErrInvalidCount
	}
	return r.readStream(ctx, stream, cursorEventID, count, forward)
}

// ReadEventsBackward implements store.Reader.
func (r *Repository) ReadEventsBackward(ctx context.Context, stream, cursorEventID string, count int) ([]es.Event, error) {
	if count <= 0 {
		return nil, store.ErrInvalidCount
	}
	return r.readStream(ctx, stream, cursorEventID, count, backward)
}

// ReadStreamEventsForward implements store.Reader.
func (r *Repository) ReadStreamEventsForward(ctx context.Context, stream string) ([]es.Event, error) {
	return r.readStream(ctx, stream, "", 0, forward)
}

// ReadStreamEventsBackward implements store.Reader.
func (r *Repository) ReadStreamEventsBackward(ctx context.Context, stream string) ([]es.Event, error) {
	return r.readStream(ctx, stream, "", 0, backward)
}

// ReadAllStreamsForward implements store.Reader.
func (r *Repository) ReadAllStreamsForward(ctx context.Context, cursorEventID string, count int) ([]es.Event, error) {
	return r.ReadEventsForward(ctx, es.GlobalStream, cursorEventID, count)
}

// ReadAllStreamsBackward implements store.Reader.
func (r *Repository) ReadAllStreamsBackward(ctx context.Context, cursorEventID string, count int) ([]es.Event, error) {
	return r.ReadEventsBackward(ctx, es.GlobalStream, cursorEventID, count)
}

// ListStreams implements store.Reader.
// The global stream is listed first, followed by named streams in the order
// they were first written to.
func (r *Repository) ListStreams(ctx context.Context) (_ []string, err error) {
	ctx, finish := r.startRead(ctx, "list_streams")
	defer func() { finish(err) }()

	query := fmt.Sprintf(`
		SELECT stream
		FROM %s
		GROUP BY stream
		ORDER BY MIN(id) ASC
	`, r.config.Tables.Streams)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	streams := []string{es.GlobalStream}
	for rows.Next() {
		var stream string
		if err := rows.Scan(&stream); err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		streams = append(streams, stream)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return streams, nil
}

// readStream reads memberships of stream joined with their records, in
// insertion order. count == 0 reads without a limit.
func (r *Repository) readStream(ctx context.Context, stream, cursorEventID string, count int, dir direction) (_ []es.Event, err error) {
	ctx, finish := r.startRead(ctx, "read_"+dir.String(),
		attribute.String("eventstore.stream", stream),
		attribute.String("eventstore.cursor", cursorEventID),
		attribute.Int("eventstore.count", count))
	defer func() { finish(err) }()

	if stream == "" {
		return nil, store.ErrIncorrectStreamData
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "reading stream",
			"stream", stream,
			"cursor", cursorEventID,
			"count", count,
			"direction", dir.String())
	}

	global := es.IsGlobalStream(stream)
	table := r.config.Tables.Streams
	if global {
		table = r.config.Tables.Global
	}

	query := fmt.Sprintf(`
		SELECT e.id, e.event_type, e.data, e.metadata
		FROM %s m
		JOIN %s e ON e.id = m.event_id
		WHERE 1 = 1`, table, r.config.Tables.Records)
	var args []any

	if !global {
		query += " AND m.stream = ?"
		args = append(args, stream)
	}

	if cursorEventID != "" {
		cursor, err := r.cursorID(ctx, table, global, stream, cursorEventID)
		if err != nil {
			return nil, err
		}
		if dir == forward {
			query += " AND m.id > ?"
		} else {
			query += " AND m.id < ?"
		}
		args = append(args, cursor)
	}

	if dir == forward {
		query += " ORDER BY m.id ASC"
	} else {
		query += " ORDER BY m.id DESC"
	}

	if count > 0 {
		query += " LIMIT ?"
		args = append(args, count)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream: %w", err)
	}
	defer rows.Close()

	var events []es.Event
	for rows.Next() {
		var rec es.Record
		if err := rows.Scan(&rec.EventID, &rec.EventType, &rec.Data, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event, err := r.config.Mapper.ToDomainEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to map event %s: %w", rec.EventID, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "stream read",
			"stream", stream,
			"event_count", len(events))
	}

	return events, nil
}

// cursorID finds the membership row of cursorEventID within the stream.
func (r *Repository) cursorID(ctx context.Context, table string, global bool, stream, cursorEventID string) (int64, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE event_id = ?`, table)
	args := []any{cursorEventID}
	if !global {
		query += " AND stream = ?"
		args = append(args, stream)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &store.EventNotFoundError{EventID: cursorEventID}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to locate cursor: %w", err)
	}
	return id, nil
}
