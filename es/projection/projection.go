// Package projection provides projection processing capabilities.
//
// A processor follows the global stream from a per-projection checkpoint (the
// id of the last processed event) and hands each event to the projection inside
// the same transaction that advances the checkpoint.
package projection

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/getpup/pupstreams/es"
)

var (
	// ErrProjectionStopped indicates the projection was stopped due to an error.
	ErrProjectionStopped = errors.New("projection stopped")

	// ErrInvalidPartitionConfig indicates invalid partition configuration.
	ErrInvalidPartitionConfig = errors.New("invalid partition configuration")
)

// Projection defines the interface for event projection handlers.
type Projection interface {
	// Name returns the unique name of this projection.
	// This name is used for checkpoint tracking.
	Name() string

	// Handle processes a single event inside the processor's transaction.
	// Return an error to stop projection processing.
	Handle(ctx context.Context, tx es.DBTX, event es.Event) error
}

// ScopedProjection is a projection that only receives events of certain types.
// Events of other types are skipped, but still advance the checkpoint.
type ScopedProjection interface {
	Projection

	// EventTypes returns the event types this projection handles.
	// An empty list means all event types.
	EventTypes() []string
}

// ProcessorRunner runs a projection until the context is canceled or it fails.
type ProcessorRunner interface {
	Run(ctx context.Context, proj Projection) error
}

// EventSource is the part of the store reader a processor needs.
type EventSource interface {
	ReadAllStreamsForward(ctx context.Context, cursorEventID string, count int) ([]es.Event, error)
}

// CheckpointStore persists the last processed event id per projection.
// An empty checkpoint means the projection starts at the head of the global stream.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, tx es.DBTX, projectionName string) (string, error)
	UpdateCheckpoint(ctx context.Context, tx es.DBTX, projectionName, eventID string) error
}

// PartitionStrategy defines how events are partitioned across projection instances.
type PartitionStrategy interface {
	// ShouldProcess returns true if this projection instance should process the given event.
	// partitionKey identifies this projection instance (e.g., 0 for first of 4 workers).
	// totalPartitions is the total number of projection instances.
	ShouldProcess(eventID string, partitionKey int, totalPartitions int) bool
}

// HashPartitionStrategy implements deterministic hash-based partitioning.
// Events are distributed across partitions based on an FNV-1a hash of the event id,
// so every event is handled by exactly one partition.
type HashPartitionStrategy struct{}

// ShouldProcess implements PartitionStrategy.
func (HashPartitionStrategy) ShouldProcess(eventID string, partitionKey int, totalPartitions int) bool {
	if totalPartitions <= 1 {
		return true
	}

	h := fnv.New32a()
	h.Write([]byte(eventID))
	partition := int(h.Sum32() % uint32(totalPartitions))
	return partition == partitionKey
}

// ProcessorConfig configures a projection processor.
type ProcessorConfig struct {
	// Logger is an optional logger for observability.
	Logger es.Logger

	// PartitionStrategy determines which events this processor handles
	PartitionStrategy PartitionStrategy

	// BatchSize is the number of events to read per batch
	BatchSize int

	// PollInterval is how long to wait before polling again when caught up
	PollInterval time.Duration

	// PartitionKey identifies this processor instance (0-indexed)
	PartitionKey int

	// TotalPartitions is the total number of processor instances
	TotalPartitions int
}

// DefaultProcessorConfig returns the default configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:         100,
		PollInterval:      time.Second,
		PartitionKey:      0,
		TotalPartitions:   1,
		PartitionStrategy: HashPartitionStrategy{},
	}
}

// Validate checks the batch and partition settings.
func (c *ProcessorConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.TotalPartitions < 1 {
		return fmt.Errorf("%w: total partitions must be at least 1, got %d", ErrInvalidPartitionConfig, c.TotalPartitions)
	}
	if c.PartitionKey < 0 || c.PartitionKey >= c.TotalPartitions {
		return fmt.Errorf("%w: partition key %d out of range [0, %d)", ErrInvalidPartitionConfig, c.PartitionKey, c.TotalPartitions)
	}
	return nil
}

// CheckpointName is the checkpoint key for proj under this configuration.
// Partitions of one projection keep separate checkpoints.
func (c *ProcessorConfig) CheckpointName(proj Projection) string {
	if c.TotalPartitions <= 1 {
		return proj.Name()
	}
	return fmt.Sprintf("%s#%d/%d", proj.Name(), c.PartitionKey, c.TotalPartitions)
}
