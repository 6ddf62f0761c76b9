// Package metrics exposes Prometheus metrics for event store operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/getpup/pupstreams/es/store"
)

// Operation names used as label values.
const (
	OperationAppend = "append"
	OperationLink   = "link"
	OperationDelete = "delete"
)

// Outcome label values.
const (
	OutcomeSuccess         = "success"
	OutcomeWrongVersion    = "wrong_expected_version"
	OutcomeDuplicate       = "duplicate"
	OutcomeNotFound        = "not_found"
	OutcomeInvalidArgument = "invalid_argument"
	OutcomeError           = "error"
)

// Collector records event store metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	operations *prometheus.CounterVec
	events     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deletes    prometheus.Counter
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventstore_operations_total",
				Help: "Total number of event store write operations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventstore_events_written_total",
				Help: "Total number of events appended or linked by successful operations.",
			},
			[]string{"operation"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventstore_operation_duration_seconds",
				Help:    "Duration of event store write operations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		deletes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventstore_stream_deletes_total",
				Help: "Total number of stream deletions.",
			},
		),
	}

	for _, collector := range []prometheus.Collector{c.operations, c.events, c.duration, c.deletes} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	// Ensure outcome series are visible before the first write.
	for _, op := range []string{OperationAppend, OperationLink} {
		for _, outcome := range []string{
			OutcomeSuccess,
			OutcomeWrongVersion,
			OutcomeDuplicate,
			OutcomeNotFound,
			OutcomeInvalidArgument,
			OutcomeError,
		} {
			c.operations.WithLabelValues(op, outcome)
		}
	}

	return c, nil
}

// MustNewCollector is like NewCollector but panics if registration fails.
func MustNewCollector(reg prometheus.Registerer) *Collector {
	c, err := NewCollector(reg)
	if err != nil {
		panic(err)
	}
	return c
}

// ObserveWrite records the outcome of an append, link or delete.
func (c *Collector) ObserveWrite(operation string, err error, eventCount int, d time.Duration) {
	if c == nil {
		return
	}

	outcome := OutcomeFromError(err)
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.duration.WithLabelValues(operation).Observe(d.Seconds())

	if err == nil {
		if operation == OperationDelete {
			c.deletes.Inc()
			return
		}
		c.events.WithLabelValues(operation).Add(float64(eventCount))
	}
}

// OutcomeFromError maps an operation error to its outcome label.
func OutcomeFromError(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, store.ErrWrongExpectedEventVersion):
		return OutcomeWrongVersion
	case errors.Is(err, store.ErrEventDuplicatedInStream):
		return OutcomeDuplicate
	case errors.Is(err, store.ErrEventNotFound):
		return OutcomeNotFound
	case errors.Is(err, store.ErrInvalidExpectedVersion),
		errors.Is(err, store.ErrIncorrectStreamData),
		errors.Is(err, store.ErrNoEvents):
		return OutcomeInvalidArgument
	default:
		return OutcomeError
	}
}
