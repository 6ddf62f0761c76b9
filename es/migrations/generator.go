// Package migrations provides SQL migration generation for the event store schema.
package migrations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
)

// Supported adapter names.
const (
	AdapterPostgres = "postgres"
	AdapterMySQL    = "mysql"
	AdapterSQLite   = "sqlite"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// RecordsTable is the name of the event record table
	RecordsTable string

	// StreamsTable is the name of the named-stream membership table
	StreamsTable string

	// GlobalTable is the name of the global-stream membership table
	GlobalTable string

	// CheckpointsTable is the name of the projection checkpoints table
	CheckpointsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	tables := store.DefaultTables()
	return Config{
		OutputFolder:     "migrations",
		OutputFilename:   fmt.Sprintf("%s_init_event_store.sql", timestamp),
		RecordsTable:     tables.Records,
		StreamsTable:     tables.Streams,
		GlobalTable:      tables.Global,
		CheckpointsTable: "projection_checkpoints",
	}
}

// Tables returns the store table names configured for the migration.
func (c *Config) Tables() store.Tables {
	return store.Tables{
		Records: c.RecordsTable,
		Streams: c.StreamsTable,
		Global:  c.GlobalTable,
	}
}

// SQL returns the migration for adapter without writing it to disk.
func SQL(adapter string, config *Config) (string, error) {
	if err := config.Tables().Validate(); err != nil {
		return "", fmt.Errorf("invalid table configuration: %w", err)
	}
	if strings.TrimSpace(config.CheckpointsTable) == "" {
		return "", fmt.Errorf("checkpoints table name is required")
	}

	switch adapter {
	case AdapterPostgres:
		return generatePostgresSQL(config), nil
	case AdapterMySQL:
		return generateMySQLSQL(config), nil
	case AdapterSQLite:
		return generateSQLiteSQL(config), nil
	default:
		return "", fmt.Errorf("unsupported adapter %q: supported adapters are postgres, mysql, sqlite", adapter)
	}
}

// Generate writes the migration for adapter to OutputFolder/OutputFilename.
func Generate(adapter string, config *Config) error {
	sql, err := SQL(adapter, config)
	if err != nil {
		return err
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(AdapterPostgres, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(AdapterSQLite, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(AdapterMySQL, config)
}

// Statements splits a generated migration into individual statements so it
// can be executed by drivers that reject multi-statement queries.
func Statements(sql string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}

// Apply creates the event store schema directly on db, one statement at a time.
// Every statement is idempotent, so Apply can run against an existing schema.
func Apply(ctx context.Context, db es.DBTX, adapter string, config *Config) error {
	sql, err := SQL(adapter, config)
	if err != nil {
		return err
	}
	for i, stmt := range Statements(sql) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration statement %d: %w", i+1, err)
		}
	}
	return nil
}

func generatePostgresSQL(config *Config) string {
	t := config.Tables()
	return fmt.Sprintf(`-- Event Store Migration
-- Generated: %s

-- Record table stores every event exactly once; rows are never updated
CREATE TABLE IF NOT EXISTS %s (
    id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    data BYTEA NOT NULL,
    metadata BYTEA,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT %s PRIMARY KEY (id)
);

-- Named stream memberships
-- position is NULL for memberships written with expected version Any
CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    stream TEXT NOT NULL,
    position BIGINT,
    event_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    -- Optimistic concurrency: a position is taken at most once per stream
    CONSTRAINT %s UNIQUE (stream, position),
    -- An event appears at most once per stream
    CONSTRAINT %s UNIQUE (stream, event_id)
);

-- Index for stream range scans in insertion order
CREATE INDEX IF NOT EXISTS idx_%s_stream_id
    ON %s (stream, id);

-- Global stream memberships, one per appended event, without positions
CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    event_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT %s UNIQUE (event_id)
);

-- Projection checkpoints table tracks the last event processed by each projection
CREATE TABLE IF NOT EXISTS %s (
    projection_name TEXT PRIMARY KEY,
    last_event_id TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
		time.Now().Format(time.RFC3339),
		t.Records, t.RecordsPrimaryKey(),
		t.Streams, t.StreamPositionIndex(), t.StreamEventIndex(),
		t.Streams, t.Streams,
		t.Global, t.GlobalEventIndex(),
		config.CheckpointsTable,
	)
}

func generateSQLiteSQL(config *Config) string {
	t := config.Tables()
	return fmt.Sprintf(`-- Event Store Migration for SQLite
-- Generated: %s

-- Record table stores every event exactly once; rows are never updated
CREATE TABLE IF NOT EXISTS %s (
    id TEXT NOT NULL PRIMARY KEY,
    event_type TEXT NOT NULL,
    data BLOB NOT NULL,
    metadata BLOB,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Named stream memberships
-- position is NULL for memberships written with expected version Any
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stream TEXT NOT NULL,
    position INTEGER,
    event_id TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Optimistic concurrency: a position is taken at most once per stream
CREATE UNIQUE INDEX IF NOT EXISTS %s
    ON %s (stream, position);

-- An event appears at most once per stream
CREATE UNIQUE INDEX IF NOT EXISTS %s
    ON %s (stream, event_id);

-- Index for stream range scans in insertion order
CREATE INDEX IF NOT EXISTS idx_%s_stream_id
    ON %s (stream, id);

-- Global stream memberships, one per appended event, without positions
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS %s
    ON %s (event_id);

-- Projection checkpoints table tracks the last event processed by each projection
CREATE TABLE IF NOT EXISTS %s (
    projection_name TEXT PRIMARY KEY,
    last_event_id TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`,
		time.Now().Format(time.RFC3339),
		t.Records,
		t.Streams,
		t.StreamPositionIndex(), t.Streams,
		t.StreamEventIndex(), t.Streams,
		t.Streams, t.Streams,
		t.Global,
		t.GlobalEventIndex(), t.Global,
		config.CheckpointsTable,
	)
}

func generateMySQLSQL(config *Config) string {
	t := config.Tables()
	return fmt.Sprintf(`-- Event Store Migration for MySQL/MariaDB
-- Generated: %s

-- Record table stores every event exactly once; rows are never updated
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) NOT NULL,
    event_type VARCHAR(255) NOT NULL,
    data LONGBLOB NOT NULL,
    metadata LONGBLOB,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;

-- Named stream memberships
-- position is NULL for memberships written with expected version Any
CREATE TABLE IF NOT EXISTS %s (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    stream VARCHAR(255) NOT NULL,
    position BIGINT NULL,
    event_id VARCHAR(255) NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    -- Optimistic concurrency: a position is taken at most once per stream
    UNIQUE KEY %s (stream, position),
    -- An event appears at most once per stream
    UNIQUE KEY %s (stream, event_id),
    -- Index for stream range scans in insertion order
    KEY idx_%s_stream_id (stream, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;

-- Global stream memberships, one per appended event, without positions
CREATE TABLE IF NOT EXISTS %s (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    event_id VARCHAR(255) NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    UNIQUE KEY %s (event_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;

-- Projection checkpoints table tracks the last event processed by each projection
CREATE TABLE IF NOT EXISTS %s (
    projection_name VARCHAR(255) PRIMARY KEY,
    last_event_id VARCHAR(255) NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;
`,
		time.Now().Format(time.RFC3339),
		t.Records,
		t.Streams, t.StreamPositionIndex(), t.StreamEventIndex(), t.Streams,
		t.Global, t.GlobalEventIndex(),
		config.CheckpointsTable,
	)
}
