// Command eventstore inspects and writes to an event store database.
//
// Connection and logging settings come from the environment:
//
//	EVENTSTORE_ADAPTER=postgres EVENTSTORE_DSN=postgres://localhost/events eventstore verify
//
// Examples:
//
//	eventstore migrate
//	eventstore append -stream order-42 -expected none -type OrderPlaced -data '{"total":10}'
//	eventstore link -stream vip-orders <event-id>
//	eventstore read -stream order-42 -count 10
//	eventstore read -backward -count 5
//	eventstore streams
//	eventstore delete -stream order-42
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/adapters/mysql"
	"github.com/getpup/pupstreams/es/adapters/postgres"
	"github.com/getpup/pupstreams/es/adapters/sqlite"
	"github.com/getpup/pupstreams/es/metrics"
	"github.com/getpup/pupstreams/es/migrations"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

func main() {
	fs := flag.NewFlagSet("eventstore", flag.ExitOnError)
	fs.Usage = func() { usage(fs) }

	cfg, err := ParseConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage: eventstore [flags] <command> [command flags]\n\nCommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(out, "  %-8s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	fs.PrintDefaults()
}

// Run executes cfg.Command, writing results to stdout and logs to stderr.
func Run(ctx context.Context, cfg Config, stdout, stderr io.Writer) (err error) {
	cmd, ok := commands[cfg.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", cfg.Command)
	}

	logger, err := NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	shutdown, err := setupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, shutdown(context.WithoutCancel(ctx)))
	}()

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	a := &app{cfg: cfg, db: db, out: stdout, errOut: stderr}
	if !cmd.raw {
		a.repo, err = newRepository(ctx, db, cfg,
			sqlstore.WithLogger(es.NewSlogLogger(logger)),
			sqlstore.WithMetrics(collector),
			sqlstore.WithTables(cfg.Tables()),
			sqlstore.WithCheckpointsTable(cfg.CheckpointsTable),
		)
		if err != nil {
			return err
		}
	}

	if err := cmd.run(ctx, a, cfg.Args); err != nil {
		return err
	}

	if cfg.Metrics {
		return writeMetrics(stderr, registry)
	}
	return nil
}

func openDB(cfg Config) (*sql.DB, error) {
	switch cfg.Adapter {
	case migrations.AdapterSQLite:
		return sqlite.Open(cfg.DSN)
	case migrations.AdapterPostgres:
		return postgres.Open(cfg.PostgresDriver, cfg.DSN)
	case migrations.AdapterMySQL:
		return mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported adapter %q: supported adapters are postgres, mysql, sqlite", cfg.Adapter)
	}
}

func newRepository(ctx context.Context, db *sql.DB, cfg Config, opts ...sqlstore.Option) (*sqlstore.Repository, error) {
	switch cfg.Adapter {
	case migrations.AdapterSQLite:
		return sqlite.NewRepository(ctx, db, opts...)
	case migrations.AdapterPostgres:
		return postgres.NewRepository(ctx, db, opts...)
	case migrations.AdapterMySQL:
		return mysql.NewRepository(ctx, db, opts...)
	default:
		return nil, fmt.Errorf("unsupported adapter %q", cfg.Adapter)
	}
}

func applyMigrations(ctx context.Context, db *sql.DB, cfg Config) error {
	tables := cfg.Tables()
	config := migrations.DefaultConfig()
	config.RecordsTable = tables.Records
	config.StreamsTable = tables.Streams
	config.GlobalTable = tables.Global
	config.CheckpointsTable = cfg.CheckpointsTable
	return migrations.Apply(ctx, db, cfg.Adapter, &config)
}
