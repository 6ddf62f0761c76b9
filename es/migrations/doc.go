// Package migrations provides SQL migration generation for the event store schema.
//
// The schema has three tables: the record table, the named-stream membership
// table with unique (stream, position) and (stream, event_id) indexes, and the
// global-stream membership table with a unique event_id index. The violation
// classifiers in the adapter packages rely on the index names generated here.
//
// To generate migrations, use the migrate-gen command:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter postgres -output migrations
//
// Or add a go generate directive to your code:
//
//	//go:generate go run github.com/getpup/pupstreams/cmd/migrate-gen -output ../../migrations
//
// Then run:
//
//	go generate ./...
package migrations
