// Package es provides core event sourcing interfaces and types.
package es

// GlobalStream is the reserved name of the stream that contains every
// appended event exactly once. It has no positions and no version of its own.
const GlobalStream = "all"

// Event represents an immutable domain event as handed to and returned by the store.
// Events are value objects; the store never mutates them after they are written.
type Event struct {
	// Data is the domain payload. Its shape is owned by the Mapper in use.
	Data any

	// Metadata contains additional event context (correlation ids, actor, ...)
	Metadata map[string]any

	// EventID uniquely identifies the event across the whole store.
	// If empty on append, the mapper assigns a new UUID.
	EventID string

	// EventType identifies the logical type of the event
	EventType string
}

// Record is the serialized form of an event as persisted in the record table.
type Record struct {
	// EventID is the primary key of the record
	EventID string

	// EventType is copied from the domain event and used by mappers to decode Data
	EventType string

	// Data contains the serialized payload
	// Stored as bytes so any serialization format can be used
	Data []byte

	// Metadata contains the serialized metadata
	Metadata []byte
}

// Mapper converts domain events to records and back.
// Implementations must be pure: the same input always yields the same output,
// apart from event id generation for events that carry none.
type Mapper interface {
	// ToRecord serializes a domain event.
	ToRecord(event Event) (Record, error)

	// ToDomainEvent deserializes a stored record.
	ToDomainEvent(record Record) (Event, error)
}

// IsGlobalStream reports whether stream names the reserved global stream.
func IsGlobalStream(stream string) bool {
	return stream == GlobalStream
}
