// Package runner provides optional tooling for running multiple projections and scaling them safely.
// This package is designed to be explicit, deterministic, and CLI-friendly without imposing
// framework behavior or automatic scheduling.
package runner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/getpup/pupstreams/es/projection"
)

var (
	// ErrNoProjections indicates that no projections were provided to run.
	ErrNoProjections = errors.New("no projections provided")

	// ErrInvalidPartitionConfig indicates invalid partition configuration.
	ErrInvalidPartitionConfig = projection.ErrInvalidPartitionConfig
)

// ProjectionRunner pairs a projection with its processor.
type ProjectionRunner struct {
	Projection projection.Projection
	Processor  projection.ProcessorRunner
}

// Runner orchestrates multiple projections concurrently.
//
// Example:
//
//	repo, _ := sqlite.NewRepository(ctx, db)
//	orders, _ := projection.NewProcessor(db, repo, repo, projection.DefaultProcessorConfig())
//	billing, _ := projection.NewProcessor(db, repo, repo, projection.DefaultProcessorConfig())
//
//	err := runner.New().Run(ctx, []runner.ProjectionRunner{
//	    {Projection: &OrdersProjection{}, Processor: orders},
//	    {Projection: &BillingProjection{}, Processor: billing},
//	})
type Runner struct{}

// New creates a new projection runner.
func New() *Runner {
	return &Runner{}
}

// Run runs multiple projections concurrently until the context is canceled.
// Each projection runs in its own goroutine with its processor.
//
// If a projection returns an error, all other projections are canceled and the
// first error is returned. Cancellation of ctx returns ctx.Err().
func (r *Runner) Run(ctx context.Context, runners []ProjectionRunner) error {
	if len(runners) == 0 {
		return ErrNoProjections
	}

	for i, pr := range runners {
		if pr.Projection == nil {
			return fmt.Errorf("projection at index %d is nil", i)
		}
		if pr.Processor == nil {
			return fmt.Errorf("processor at index %d is nil", i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, pr := range runners {
		g.Go(func() error {
			err := pr.Processor.Run(gctx, pr.Projection)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("projection %q failed: %w", pr.Projection.Name(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// RunPartitioned runs totalPartitions instances of proj, one per partition key.
// newProcessor builds the processor for a partition key.
func (r *Runner) RunPartitioned(
	ctx context.Context,
	proj projection.Projection,
	totalPartitions int,
	newProcessor func(partitionKey, totalPartitions int) (projection.ProcessorRunner, error),
) error {
	if totalPartitions < 1 {
		return fmt.Errorf("%w: total partitions must be at least 1, got %d", ErrInvalidPartitionConfig, totalPartitions)
	}

	runners := make([]ProjectionRunner, totalPartitions)
	for key := range runners {
		processor, err := newProcessor(key, totalPartitions)
		if err != nil {
			return fmt.Errorf("failed to create processor for partition %d: %w", key, err)
		}
		runners[key] = ProjectionRunner{Projection: proj, Processor: processor}
	}
	return r.Run(ctx, runners)
}
