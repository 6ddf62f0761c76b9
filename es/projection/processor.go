package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/pupstreams/es"
)

// Processor processes events of the global stream for a projection.
type Processor struct {
	db          es.TxBeginner
	source      EventSource
	checkpoints CheckpointStore
	config      ProcessorConfig
}

var _ ProcessorRunner = (*Processor)(nil)

// NewProcessor creates a new projection processor.
// Zero values in config fall back to DefaultProcessorConfig.
func NewProcessor(db es.TxBeginner, source EventSource, checkpoints CheckpointStore, config ProcessorConfig) (*Processor, error) {
	defaults := DefaultProcessorConfig()
	if config.BatchSize == 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.TotalPartitions == 0 {
		config.TotalPartitions = defaults.TotalPartitions
	}
	if config.PartitionStrategy == nil {
		config.PartitionStrategy = defaults.PartitionStrategy
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Processor{
		db:          db,
		source:      source,
		checkpoints: checkpoints,
		config:      config,
	}, nil
}

// Run processes events for the given projection until the context is canceled.
// Returns ErrProjectionStopped if the projection handler or the store fails.
func (p *Processor) Run(ctx context.Context, proj Projection) error {
	if p.config.Logger != nil {
		p.config.Logger.Info(ctx, "projection processor starting",
			"projection", proj.Name(),
			"partition_key", p.config.PartitionKey,
			"total_partitions", p.config.TotalPartitions,
			"batch_size", p.config.BatchSize)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.config.Logger != nil {
				p.config.Logger.Info(ctx, "projection processor stopped",
					"projection", proj.Name(),
					"reason", ctx.Err())
			}
			return ctx.Err()
		case <-timer.C:
		}

		processed, err := p.ProcessBatch(ctx, proj)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.config.Logger != nil {
				p.config.Logger.Error(ctx, "projection processor error",
					"projection", proj.Name(),
					"error", err)
			}
			return fmt.Errorf("%w: %v", ErrProjectionStopped, err)
		}

		// Keep draining while there is backlog; poll once caught up.
		if processed < p.config.BatchSize {
			timer.Reset(p.config.PollInterval)
		} else {
			timer.Reset(0)
		}
	}
}

// ProcessBatch reads one batch after the projection's checkpoint, handles it
// and advances the checkpoint in a single transaction. It returns the number
// of events read.
func (p *Processor) ProcessBatch(ctx context.Context, proj Projection) (int, error) {
	name := p.config.CheckpointName(proj)
	filter := eventTypeFilter(proj)

	checkpoint, err := p.checkpoints.GetCheckpoint(ctx, p.db, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	events, err := p.source.ReadAllStreamsForward(ctx, checkpoint, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read events after %q: %w", checkpoint, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if p.config.Logger != nil {
		p.config.Logger.Debug(ctx, "processing batch",
			"projection", proj.Name(),
			"checkpoint", checkpoint,
			"event_count", len(events))
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error ignored: expected to fail if commit succeeds
		tx.Rollback()
	}()

	var processed, skipped int
	for i := range events {
		event := events[i]

		if !p.shouldProcess(event, filter) {
			skipped++
			continue
		}

		if err := proj.Handle(ctx, tx, event); err != nil {
			if p.config.Logger != nil {
				p.config.Logger.Error(ctx, "projection handler error",
					"projection", proj.Name(),
					"event_id", event.EventID,
					"event_type", event.EventType,
					"error", err)
			}
			return 0, fmt.Errorf("projection handler error at event %s: %w", event.EventID, err)
		}
		processed++
	}

	last := events[len(events)-1].EventID
	if err := p.checkpoints.UpdateCheckpoint(ctx, tx, name, last); err != nil {
		return 0, fmt.Errorf("failed to update checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}

	if p.config.Logger != nil {
		p.config.Logger.Debug(ctx, "batch processed",
			"projection", proj.Name(),
			"processed", processed,
			"skipped", skipped,
			"checkpoint", last)
	}

	return len(events), nil
}

//nolint:gocritic // hugeParam: Intentionally pass by value to match event processing pattern
func (p *Processor) shouldProcess(event es.Event, filter map[string]bool) bool {
	if !p.config.PartitionStrategy.ShouldProcess(event.EventID, p.config.PartitionKey, p.config.TotalPartitions) {
		return false
	}
	return filter == nil || filter[event.EventType]
}

// eventTypeFilter builds a filter map for scoped projections.
// Returns nil if the projection is not scoped or has an empty event types list.
func eventTypeFilter(proj Projection) map[string]bool {
	scoped, ok := proj.(ScopedProjection)
	if !ok {
		return nil
	}

	types := scoped.EventTypes()
	if len(types) == 0 {
		return nil
	}

	filter := make(map[string]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return filter
}
