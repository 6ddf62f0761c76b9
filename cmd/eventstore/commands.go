package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

// app is what a command runs against.
type app struct {
	cfg    Config
	db     *sql.DB
	repo   *sqlstore.Repository
	out    io.Writer
	errOut io.Writer
}

type command struct {
	usage string
	// raw commands run without a repository, so without schema verification.
	raw bool
	run func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"migrate": {usage: "create the event store tables", raw: true, run: runMigrate},
	"verify":  {usage: "check the schema the store relies on", run: runVerify},
	"append":  {usage: "append one event to a stream", run: runAppend},
	"link":    {usage: "link existing events to a stream", run: runLink},
	"delete":  {usage: "delete a stream's memberships", run: runDelete},
	"read":    {usage: "read events of a stream", run: runRead},
	"last":    {usage: "print the last event of a stream", run: runLast},
	"event":   {usage: "print one event by id", run: runEvent},
	"streams": {usage: "list streams", run: runStreams},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	if err := a.flagSet("migrate").Parse(args); err != nil {
		return err
	}
	if err := applyMigrations(ctx, a.db, a.cfg); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "migrated %s schema\n", a.cfg.Adapter)
	return nil
}

func runVerify(_ context.Context, a *app, args []string) error {
	if err := a.flagSet("verify").Parse(args); err != nil {
		return err
	}
	// The repository was built with verification on, so reaching here means the schema is usable.
	fmt.Fprintln(a.out, "schema ok")
	return nil
}

func runAppend(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("append")
	stream := fs.String("stream", "", "target stream (required)")
	expected := fs.String("expected", "auto", "expected version: any, none, auto or a number")
	eventType := fs.String("type", "", "event type (required)")
	eventID := fs.String("id", "", "event id (default: random UUID)")
	data := fs.String("data", "{}", "JSON payload")
	metadata := fs.String("metadata", "", "JSON object with metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *stream == "" || *eventType == "" {
		return errors.New("append requires -stream and -type")
	}
	version, err := es.ParseExpectedVersion(*expected)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(*data)) {
		return fmt.Errorf("-data is not valid JSON")
	}

	event := es.Event{
		EventID:   *eventID,
		EventType: *eventType,
		Data:      json.RawMessage(*data),
	}
	if *metadata != "" {
		if err := json.Unmarshal([]byte(*metadata), &event.Metadata); err != nil {
			return fmt.Errorf("-metadata must be a JSON object: %w", err)
		}
	}

	if err := a.repo.AppendToStream(ctx, []es.Event{event}, *stream, version); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "appended %s to %s\n", *eventType, *stream)
	return nil
}

func runLink(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("link")
	stream := fs.String("stream", "", "target stream (required)")
	expected := fs.String("expected", "auto", "expected version: any, none, auto or a number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ids := fs.Args()
	if *stream == "" || len(ids) == 0 {
		return errors.New("link requires -stream and at least one event id")
	}
	version, err := es.ParseExpectedVersion(*expected)
	if err != nil {
		return err
	}

	if err := a.repo.LinkToStream(ctx, ids, *stream, version); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "linked %d events to %s\n", len(ids), *stream)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("delete")
	stream := fs.String("stream", "", "stream to delete (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stream == "" {
		return errors.New("delete requires -stream")
	}

	if err := a.repo.DeleteStream(ctx, *stream); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", *stream)
	return nil
}

func runRead(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("read")
	stream := fs.String("stream", es.GlobalStream, "stream to read")
	cursor := fs.String("cursor", "", "event id to start after (or before with -backward)")
	count := fs.Int("count", 100, "maximum number of events, 0 reads the whole stream")
	backward := fs.Bool("backward", false, "read newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		events []es.Event
		err    error
	)
	switch {
	case *count == 0 && *cursor == "" && *backward:
		events, err = a.repo.ReadStreamEventsBackward(ctx, *stream)
	case *count == 0 && *cursor == "":
		events, err = a.repo.ReadStreamEventsForward(ctx, *stream)
	case *backward:
		events, err = a.repo.ReadEventsBackward(ctx, *stream, *cursor, *count)
	default:
		events, err = a.repo.ReadEventsForward(ctx, *stream, *cursor, *count)
	}
	if err != nil {
		return err
	}
	return writeEvents(a.out, events...)
}

func runLast(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("last")
	stream := fs.String("stream", es.GlobalStream, "stream to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	event, err := a.repo.LastStreamEvent(ctx, *stream)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	return writeEvents(a.out, *event)
}

func runEvent(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("event")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("event requires exactly one event id")
	}

	event, err := a.repo.ReadEvent(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return writeEvents(a.out, event)
}

func runStreams(ctx context.Context, a *app, args []string) error {
	if err := a.flagSet("streams").Parse(args); err != nil {
		return err
	}

	streams, err := a.repo.ListStreams(ctx)
	if err != nil {
		return err
	}
	for _, s := range streams {
		fmt.Fprintln(a.out, s)
	}
	return nil
}

type eventOutput struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// writeEvents prints events as JSON lines.
func writeEvents(w io.Writer, events ...es.Event) error {
	enc := json.NewEncoder(w)
	for _, e := range events {
		out := eventOutput{
			EventID:   e.EventID,
			EventType: e.EventType,
			Metadata:  e.Metadata,
		}
		switch data := e.Data.(type) {
		case json.RawMessage:
			if len(data) > 0 {
				out.Data = data
			}
		default:
			b, err := json.Marshal(data)
			if err != nil {
				return fmt.Errorf("failed to encode event %s: %w", e.EventID, err)
			}
			out.Data = b
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to write event %s: %w", e.EventID, err)
		}
	}
	return nil
}
