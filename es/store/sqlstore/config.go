package sqlstore

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/mapper"
	"github.com/getpup/pupstreams/es/metrics"
	"github.com/getpup/pupstreams/es/store"
)

// Config contains configuration for the SQL event store.
// Configuration is immutable after construction.
type Config struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// Mapper converts domain events to records and back.
	// Defaults to a JSON mapper without registered types.
	Mapper es.Mapper

	// Metrics is an optional Prometheus collector.
	Metrics *metrics.Collector

	// TracerProvider supplies the tracer for operation spans.
	// Defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider

	// Tables names the record, stream and global tables
	Tables store.Tables

	// CheckpointsTable is the name of the projection checkpoints table
	CheckpointsTable string

	// VerifySchema runs the dialect's schema verifier during construction
	VerifySchema bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Logger:           nil, // No logging by default
		Mapper:           mapper.NewJSON(),
		Tables:           store.DefaultTables(),
		CheckpointsTable: "projection_checkpoints",
		VerifySchema:     true,
	}
}

// Option is a functional option for configuring a Repository.
type Option func(*Config)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMapper sets the event mapper.
func WithMapper(m es.Mapper) Option {
	return func(c *Config) {
		c.Mapper = m
	}
}

// WithMetrics sets a Prometheus collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = collector
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithTables sets custom table names.
func WithTables(tables store.Tables) Option {
	return func(c *Config) {
		c.Tables = tables
	}
}

// WithCheckpointsTable sets a custom projection checkpoints table name.
func WithCheckpointsTable(tableName string) Option {
	return func(c *Config) {
		c.CheckpointsTable = tableName
	}
}

// WithoutSchemaVerification skips the schema check during construction.
func WithoutSchemaVerification() Option {
	return func(c *Config) {
		c.VerifySchema = false
	}
}

// NewConfig creates a new store configuration with functional options.
// It starts with the default configuration and applies the given options.
//
// Example:
//
//	config := sqlstore.NewConfig(
//	    sqlstore.WithLogger(myLogger),
//	    sqlstore.WithMapper(myMapper),
//	)
func NewConfig(opts ...Option) Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Mapper == nil {
		config.Mapper = mapper.NewJSON()
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	return config
}
