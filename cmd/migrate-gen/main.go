// Command migrate-gen generates SQL migration files for the event store.
//
// Usage:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pupstreams/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter sqlite -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupstreams/es/migrations"
)

func main() {
	defaults := migrations.DefaultConfig()

	var (
		adapter          = flag.String("adapter", migrations.AdapterPostgres, "Database adapter: postgres, mysql, or sqlite")
		outputFolder     = flag.String("output", defaults.OutputFolder, "Output folder for migration file")
		outputFilename   = flag.String("filename", "", "Output filename (default: timestamp-based)")
		recordsTable     = flag.String("records-table", defaults.RecordsTable, "Name of event record table")
		streamsTable     = flag.String("streams-table", defaults.StreamsTable, "Name of named-stream membership table")
		globalTable      = flag.String("global-table", defaults.GlobalTable, "Name of global-stream membership table")
		checkpointsTable = flag.String("checkpoints-table", defaults.CheckpointsTable, "Name of checkpoints table")
		stdout           = flag.Bool("stdout", false, "Print the migration instead of writing a file")
	)

	flag.Parse()

	config := defaults
	config.OutputFolder = *outputFolder
	config.RecordsTable = *recordsTable
	config.StreamsTable = *streamsTable
	config.GlobalTable = *globalTable
	config.CheckpointsTable = *checkpointsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if *stdout {
		sql, err := migrations.SQL(*adapter, &config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(sql)
		return
	}

	if err := migrations.Generate(*adapter, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
