package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidExpectedVersion indicates a malformed expected version, or a
	// concrete expected version supplied for the global stream.
	// Not retryable: it is a caller bug.
	ErrInvalidExpectedVersion = errors.New("invalid expected version")

	// ErrWrongExpectedEventVersion indicates a position conflict during append or link.
	// Retryable: re-read the stream and retry with a fresh expected version.
	ErrWrongExpectedEventVersion = errors.New("wrong expected event version")

	// ErrEventDuplicatedInStream indicates the event id is already recorded in the stream.
	ErrEventDuplicatedInStream = errors.New("event duplicated in stream")

	// ErrEventNotFound indicates a referenced event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrIncorrectStreamData indicates an empty stream name.
	ErrIncorrectStreamData = errors.New("incorrect stream data")

	// ErrNoEvents indicates an attempt to append or link zero events.
	ErrNoEvents = errors.New("no events to append")

	// ErrInvalidCount indicates a non-positive page size for a paginated read.
	ErrInvalidCount = errors.New("count must be positive")

	// ErrSchemaInvalid indicates the database lacks the expected tables or constraints.
	ErrSchemaInvalid = errors.New("event store schema invalid")
)

// EventNotFoundError reports which event id could not be found.
// It matches ErrEventNotFound with errors.Is.
type EventNotFoundError struct {
	EventID string
}

// Error returns the error message.
func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event not found: %s", e.EventID)
}

// Is reports whether target is ErrEventNotFound.
func (e *EventNotFoundError) Is(target error) bool {
	return target == ErrEventNotFound
}

// Unwrap returns ErrEventNotFound.
func (e *EventNotFoundError) Unwrap() error {
	return ErrEventNotFound
}

// IsRetryable reports whether err is an optimistic concurrency conflict that
// may succeed when retried with a freshly resolved expected version.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWrongExpectedEventVersion)
}
