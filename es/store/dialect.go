package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getpup/pupstreams/es"
)

// Tables names the three tables backing the store.
type Tables struct {
	// Records is the record table, keyed by event id
	Records string

	// Streams holds named-stream memberships with their positions
	Streams string

	// Global holds the position-less memberships of the global stream
	Global string
}

// DefaultTables returns the default table names.
func DefaultTables() Tables {
	return Tables{
		Records: "event_store_events",
		Streams: "event_store_events_in_streams",
		Global:  "event_store_events_in_global",
	}
}

// Validate checks that every table name is set and distinct.
func (t Tables) Validate() error {
	names := map[string]string{"records": t.Records, "streams": t.Streams, "global": t.Global}
	seen := make(map[string]string, len(names))
	for _, role := range []string{"records", "streams", "global"} {
		name := names[role]
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s table name is required", role)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("%s and %s tables share the name %q", other, role, name)
		}
		seen[name] = role
	}
	return nil
}

// RecordsPrimaryKey is the name of the record table's primary key constraint.
func (t Tables) RecordsPrimaryKey() string {
	return t.Records + "_pkey"
}

// StreamPositionIndex is the unique index on (stream, position).
func (t Tables) StreamPositionIndex() string {
	return "uq_" + t.Streams + "_stream_position"
}

// StreamEventIndex is the unique index on (stream, event_id).
func (t Tables) StreamEventIndex() string {
	return "uq_" + t.Streams + "_stream_event_id"
}

// GlobalEventIndex is the unique index on the global table's event_id.
func (t Tables) GlobalEventIndex() string {
	return "uq_" + t.Global + "_event_id"
}

// Violation classifies a failed write.
type Violation int

const (
	// ViolationNone means the error is not a uniqueness violation.
	ViolationNone Violation = iota

	// ViolationDuplicateEvent means an event id is already present in the stream
	// (or already has a record, which puts it in the global stream).
	ViolationDuplicateEvent

	// ViolationPositionConflict means a (stream, position) pair is already taken.
	ViolationPositionConflict
)

// String returns a string representation of the Violation.
func (v Violation) String() string {
	switch v {
	case ViolationDuplicateEvent:
		return "DuplicateEvent"
	case ViolationPositionConflict:
		return "PositionConflict"
	default:
		return "None"
	}
}

// Err translates a violation into the store's error taxonomy.
// Returns nil for ViolationNone.
func (v Violation) Err() error {
	switch v {
	case ViolationDuplicateEvent:
		return ErrEventDuplicatedInStream
	case ViolationPositionConflict:
		return ErrWrongExpectedEventVersion
	default:
		return nil
	}
}

// Dialect isolates everything that depends on the storage engine.
type Dialect interface {
	// Name identifies the engine, e.g. "postgres".
	Name() string

	// Rebind rewrites a query written with '?' placeholders into the engine's style.
	Rebind(query string) string

	// Classify inspects a write error. It returns ViolationNone for errors that
	// are not uniqueness violations. Unique violations on unrecognized
	// constraints are reported as ViolationPositionConflict.
	Classify(err error, tables Tables) Violation

	// VerifySchema checks that the tables, columns and unique indexes exist.
	VerifySchema(ctx context.Context, db es.DBTX, tables Tables) error
}

// ClassifyConstraint maps a violated constraint or index name to a Violation.
// Engines that qualify names with the table ("events.PRIMARY") are accepted.
func ClassifyConstraint(name string, tables Tables) Violation {
	name = strings.Trim(strings.TrimSpace(name), "`'\"")
	if i := strings.LastIndex(name, "."); i >= 0 {
		qualifier, bare := name[:i], name[i+1:]
		if bare == "PRIMARY" && qualifier == tables.Records {
			return ViolationDuplicateEvent
		}
		name = bare
	}

	switch name {
	case tables.StreamEventIndex(), tables.GlobalEventIndex(), tables.RecordsPrimaryKey():
		return ViolationDuplicateEvent
	case tables.StreamPositionIndex():
		return ViolationPositionConflict
	default:
		return ViolationPositionConflict
	}
}

// ClassifyColumns maps the column list of a violated unique constraint, as
// reported by engines that name columns instead of constraints
// ("t.stream, t.event_id"), to a Violation.
func ClassifyColumns(columns string, tables Tables) Violation {
	var table string
	var cols []string
	for _, part := range strings.Split(columns, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i := strings.LastIndex(part, "."); i >= 0 {
			table = part[:i]
			part = part[i+1:]
		}
		cols = append(cols, part)
	}
	sort.Strings(cols)
	key := strings.Join(cols, ",")

	switch {
	case table == tables.Records && key == "id":
		return ViolationDuplicateEvent
	case table == tables.Global && key == "event_id":
		return ViolationDuplicateEvent
	case table == tables.Streams && key == "event_id,stream":
		return ViolationDuplicateEvent
	default:
		return ViolationPositionConflict
	}
}
