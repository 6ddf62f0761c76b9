// Package es provides core event store infrastructure.
//
// # Overview
//
// This package defines the fundamental types shared by every storage engine:
//   - Event: immutable domain events
//   - Record: the serialized form of an event
//   - Mapper: conversion between the two
//   - ExpectedVersion: optimistic concurrency tokens
//   - DBTX: database transaction abstraction
//
// # Streams
//
// Every event is stored once as a record. Streams are ordered lists of
// memberships pointing at records, so one record can appear in many streams.
// Appending creates the record and adds it to the target stream and to the
// reserved global stream "all". Linking adds existing records to another
// stream. Deleting a stream removes its memberships and leaves the records.
//
// # Quick Start
//
// 1. Generate database migrations:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter postgres -output migrations
//
// 2. Apply migrations to your database
//
// 3. Create a repository:
//
//	import (
//	    "github.com/getpup/pupstreams/es"
//	    "github.com/getpup/pupstreams/es/adapters/postgres"
//	)
//
//	db, _ := postgres.Open(postgres.DriverPgx, dsn)
//	repo, err := postgres.NewRepository(ctx, db)
//
// 4. Append events:
//
//	events := []es.Event{
//	    {EventType: "OrderPlaced", Data: OrderPlaced{ID: "42"}},
//	}
//
//	err := repo.AppendToStream(ctx, events, "order-42", es.None())
//	if errors.Is(err, store.ErrWrongExpectedEventVersion) {
//	    // someone else wrote to the stream first
//	}
//
// 5. Process events with projections:
//
//	import "github.com/getpup/pupstreams/es/projection"
//
//	type MyProjection struct {}
//
//	func (p *MyProjection) Name() string { return "my_projection" }
//
//	func (p *MyProjection) Handle(ctx context.Context, tx es.DBTX, event es.Event) error {
//	    // Process event
//	    return nil
//	}
//
//	processor, _ := projection.NewProcessor(db, repo, repo, projection.DefaultProcessorConfig())
//	processor.Run(ctx, &MyProjection{})
//
// # Optimistic Concurrency
//
// Every append and link carries an expected version:
//   - Any: no check, no positions are assigned
//   - None: the stream must be empty, positions start at 0
//   - Auto: extend from the current last position
//   - Exact(n): positions continue from n
//
// The unique (stream, position) index is the arbiter. A conflicting write
// fails with ErrWrongExpectedEventVersion and nothing from the batch is kept.
//
// # Database Schema
//
// Three tables back the store:
//   - records: id, event_type, data, metadata
//   - stream memberships: surrogate id, stream, position, event_id
//   - global memberships: surrogate id, event_id
//
// The surrogate ids give every stream its read order. Checkpoints for
// projections live in a fourth table.
//
// # Design Decisions
//
// Bytes for data: Supports any serialization (JSON, Protobuf).
// The Mapper chooses the encoding.
//
// One engine, many dialects: The SQL is shared; dialects only rebind
// placeholders, classify constraint violations and inspect the catalog.
//
// Pull-based projections: Projections read the global stream in batches and
// advance their checkpoint in the same transaction as their own writes.
package es
