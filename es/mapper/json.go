// Package mapper converts domain events to storable records and back.
package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/getpup/pupstreams/es"
)

// ErrMissingEventType is returned when an event type can be neither read from
// the event nor derived from its payload.
var ErrMissingEventType = errors.New("event type is required")

// JSON maps events with encoding/json.
//
// Payloads of registered event types decode into their Go type; payloads of
// unregistered types decode as json.RawMessage.
type JSON struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

var _ es.Mapper = (*JSON)(nil)

// NewJSON creates a JSON mapper with no registered types.
func NewJSON() *JSON {
	return &JSON{types: make(map[string]reflect.Type)}
}

// Register binds eventType to the Go type of prototype.
// Pointers are dereferenced: Register("OrderPlaced", &OrderPlaced{}) and
// Register("OrderPlaced", OrderPlaced{}) are equivalent.
func (m *JSON) Register(eventType string, prototype any) *JSON {
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[eventType] = t
	return m
}

// ToRecord implements es.Mapper.
// An empty EventID is replaced by a random UUID and an empty EventType by the
// payload's Go type name.
func (m *JSON) ToRecord(e es.Event) (es.Record, error) {
	rec := es.Record{
		EventID:   e.EventID,
		EventType: e.EventType,
	}
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if rec.EventType == "" {
		rec.EventType = typeName(e.Data)
		if rec.EventType == "" {
			return es.Record{}, ErrMissingEventType
		}
	}

	switch data := e.Data.(type) {
	case json.RawMessage:
		rec.Data = data
	case []byte:
		rec.Data = data
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return es.Record{}, fmt.Errorf("failed to marshal %s payload: %w", rec.EventType, err)
		}
		rec.Data = b
	}

	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return es.Record{}, fmt.Errorf("failed to marshal %s metadata: %w", rec.EventType, err)
		}
		rec.Metadata = b
	}

	return rec, nil
}

// ToDomainEvent implements es.Mapper.
func (m *JSON) ToDomainEvent(rec es.Record) (es.Event, error) {
	e := es.Event{
		EventID:   rec.EventID,
		EventType: rec.EventType,
	}

	m.mu.RLock()
	t, ok := m.types[rec.EventType]
	m.mu.RUnlock()

	if ok {
		v := reflect.New(t)
		if err := json.Unmarshal(rec.Data, v.Interface()); err != nil {
			return es.Event{}, fmt.Errorf("failed to unmarshal %s payload: %w", rec.EventType, err)
		}
		e.Data = v.Elem().Interface()
	} else {
		e.Data = json.RawMessage(append([]byte(nil), rec.Data...))
	}

	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &e.Metadata); err != nil {
			return es.Event{}, fmt.Errorf("failed to unmarshal %s metadata: %w", rec.EventType, err)
		}
	}

	return e, nil
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
