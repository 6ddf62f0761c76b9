// Package store provides event store abstractions shared by all storage engines.
package store

import (
	"context"

	"github.com/getpup/pupstreams/es"
)

// Repository defines the write side of the event store.
// Every call runs in exactly one transaction: either all rows commit or none do.
type Repository interface {
	// AppendToStream creates a record for each event and adds it to stream
	// and to the global stream.
	//
	// Positions in stream are assigned as base+1, base+2, ... where base is the
	// resolved expected version. Returns ErrWrongExpectedEventVersion when a
	// position is already taken, ErrEventDuplicatedInStream when an event id is
	// already recorded, ErrInvalidExpectedVersion for malformed versions or a
	// non-Any version on the global stream.
	AppendToStream(ctx context.Context, events []es.Event, stream string, expected es.ExpectedVersion) error

	// LinkToStream adds existing records to stream without creating new records.
	// All ids are checked up front; a missing id fails the whole call with an
	// error matching ErrEventNotFound.
	LinkToStream(ctx context.Context, eventIDs []string, stream string, expected es.ExpectedVersion) error

	// DeleteStream removes all memberships of stream. Records and memberships
	// of other streams are left untouched. Deleting an unknown stream succeeds.
	// The global stream cannot be deleted.
	DeleteStream(ctx context.Context, stream string) error
}

// Reader defines the read side of the event store.
//
// Forward order is membership insertion order, which is ascending position
// for positioned streams and append order for the global stream. Cursors are
// event ids and are excluded from the results; an empty cursor starts at the
// head (forward) or the tail (backward).
type Reader interface {
	// HasEvent reports whether a record with the given id exists.
	HasEvent(ctx context.Context, eventID string) (bool, error)

	// LastStreamEvent returns the most recent event of stream, or nil if the stream is empty.
	LastStreamEvent(ctx context.Context, stream string) (*es.Event, error)

	// ReadEventsForward returns up to count events of stream after the cursor.
	ReadEventsForward(ctx context.Context, stream, afterEventID string, count int) ([]es.Event, error)

	// ReadEventsBackward returns up to count events of stream before the cursor, newest first.
	ReadEventsBackward(ctx context.Context, stream, beforeEventID string, count int) ([]es.Event, error)

	// ReadStreamEventsForward returns every event of stream, oldest first.
	ReadStreamEventsForward(ctx context.Context, stream string) ([]es.Event, error)

	// ReadStreamEventsBackward returns every event of stream, newest first.
	ReadStreamEventsBackward(ctx context.Context, stream string) ([]es.Event, error)

	// ReadAllStreamsForward returns up to count events of the global stream after the cursor.
	ReadAllStreamsForward(ctx context.Context, afterEventID string, count int) ([]es.Event, error)

	// ReadAllStreamsBackward returns up to count events of the global stream before the cursor.
	ReadAllStreamsBackward(ctx context.Context, beforeEventID string, count int) ([]es.Event, error)

	// ReadEvent returns the event with the given id or an error matching ErrEventNotFound.
	ReadEvent(ctx context.Context, eventID string) (es.Event, error)

	// ListStreams returns the global stream name followed by every named stream
	// that currently has memberships.
	ListStreams(ctx context.Context) ([]string, error)
}

// EventStore combines the write and read sides.
type EventStore interface {
	Repository
	Reader
}
