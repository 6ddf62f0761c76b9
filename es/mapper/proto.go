package mapper

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/getpup/pupstreams/es"
)

// Proto maps events whose payload is a protobuf message.
//
// The event type is the message's full name, which is also how payloads are
// resolved when reading. Metadata is stored as a google.protobuf.Struct.
type Proto struct {
	resolver protoregistry.MessageTypeResolver
}

var _ es.Mapper = (*Proto)(nil)

// NewProto creates a protobuf mapper resolving types from the global registry.
func NewProto() *Proto {
	return &Proto{resolver: protoregistry.GlobalTypes}
}

// NewProtoWithResolver creates a protobuf mapper using a custom type resolver.
func NewProtoWithResolver(resolver protoregistry.MessageTypeResolver) *Proto {
	return &Proto{resolver: resolver}
}

// ToRecord implements es.Mapper.
func (m *Proto) ToRecord(e es.Event) (es.Record, error) {
	msg, ok := e.Data.(proto.Message)
	if !ok {
		return es.Record{}, fmt.Errorf("payload %T is not a protobuf message", e.Data)
	}

	rec := es.Record{
		EventID:   e.EventID,
		EventType: string(msg.ProtoReflect().Descriptor().FullName()),
	}
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if e.EventType != "" && e.EventType != rec.EventType {
		return es.Record{}, fmt.Errorf("event type %q does not match message %s", e.EventType, rec.EventType)
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return es.Record{}, fmt.Errorf("failed to marshal %s payload: %w", rec.EventType, err)
	}
	rec.Data = data

	if len(e.Metadata) > 0 {
		meta, err := structpb.NewStruct(e.Metadata)
		if err != nil {
			return es.Record{}, fmt.Errorf("failed to convert %s metadata: %w", rec.EventType, err)
		}
		if rec.Metadata, err = proto.Marshal(meta); err != nil {
			return es.Record{}, fmt.Errorf("failed to marshal %s metadata: %w", rec.EventType, err)
		}
	}

	return rec, nil
}

// ToDomainEvent implements es.Mapper.
func (m *Proto) ToDomainEvent(rec es.Record) (es.Event, error) {
	mt, err := m.resolver.FindMessageByName(protoreflect.FullName(rec.EventType))
	if err != nil {
		return es.Event{}, fmt.Errorf("unknown message type %s: %w", rec.EventType, err)
	}

	msg := mt.New().Interface()
	if err := proto.Unmarshal(rec.Data, msg); err != nil {
		return es.Event{}, fmt.Errorf("failed to unmarshal %s payload: %w", rec.EventType, err)
	}

	e := es.Event{
		EventID:   rec.EventID,
		EventType: rec.EventType,
		Data:      msg,
	}

	if len(rec.Metadata) > 0 {
		var meta structpb.Struct
		if err := proto.Unmarshal(rec.Metadata, &meta); err != nil {
			return es.Event{}, fmt.Errorf("failed to unmarshal %s metadata: %w", rec.EventType, err)
		}
		e.Metadata = meta.AsMap()
	}

	return e, nil
}
