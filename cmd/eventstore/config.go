package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/getpup/pupstreams/es/store"
)

// Config holds the connection and observability settings shared by every command.
type Config struct {
	Adapter          string `env:"EVENTSTORE_ADAPTER" envDefault:"sqlite"`
	DSN              string `env:"EVENTSTORE_DSN" envDefault:"eventstore.db"`
	PostgresDriver   string `env:"EVENTSTORE_POSTGRES_DRIVER" envDefault:"pgx"`
	LogLevel         string `env:"EVENTSTORE_LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"EVENTSTORE_LOG_FORMAT" envDefault:"text"`
	OTelEndpoint     string `env:"EVENTSTORE_OTEL_ENDPOINT"`
	Metrics          bool   `env:"EVENTSTORE_METRICS"`
	RecordsTable     string `env:"EVENTSTORE_RECORDS_TABLE"`
	StreamsTable     string `env:"EVENTSTORE_STREAMS_TABLE"`
	GlobalTable      string `env:"EVENTSTORE_GLOBAL_TABLE"`
	CheckpointsTable string `env:"EVENTSTORE_CHECKPOINTS_TABLE" envDefault:"projection_checkpoints"`

	// Command is the subcommand name, Args its remaining arguments.
	Command string   `env:"-"`
	Args    []string `env:"-"`
}

// Tables returns the configured table names, defaulting each empty one.
func (c Config) Tables() store.Tables {
	tables := store.DefaultTables()
	if c.RecordsTable != "" {
		tables.Records = c.RecordsTable
	}
	if c.StreamsTable != "" {
		tables.Streams = c.StreamsTable
	}
	if c.GlobalTable != "" {
		tables.Global = c.GlobalTable
	}
	return tables
}

// ParseConfig loads the environment and applies the global flags in args.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Adapter, "adapter", cfg.Adapter, "database adapter: postgres, mysql or sqlite (EVENTSTORE_ADAPTER)")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "connection string, or file path for sqlite (EVENTSTORE_DSN)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, fmt.Errorf("missing command, want one of: %s", strings.Join(commandNames(), ", "))
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]

	if err := cfg.Tables().Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the slog logger described by level and format.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
