package sqlstore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/metrics"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

func TestRepository_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	repo, _ := newTestRepository(t, sqlstore.WithTracerProvider(tp))
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("e", 2))
	err := repo.AppendToStream(ctx, newEvents("x", 1), "s", es.None())
	if !errors.Is(err, store.ErrWrongExpectedEventVersion) {
		t.Fatalf("expected conflict, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	ok, failed := spans[0], spans[1]
	if ok.Name() != "eventstore.append" {
		t.Errorf("expected span eventstore.append, got %s", ok.Name())
	}
	if ok.Status().Code == codes.Error {
		t.Error("expected successful append span not to carry an error status")
	}
	if failed.Status().Code != codes.Error {
		t.Errorf("expected failed append span to have error status, got %v", failed.Status().Code)
	}

	attrs := map[string]string{}
	for _, kv := range ok.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["eventstore.stream"] != "s" {
		t.Errorf("expected stream attribute s, got %q", attrs["eventstore.stream"])
	}
	if attrs["eventstore.expected_version"] != "Auto" {
		t.Errorf("expected expected_version attribute Auto, got %q", attrs["eventstore.expected_version"])
	}
	if attrs["eventstore.event_count"] != "2" {
		t.Errorf("expected event_count attribute 2, got %q", attrs["eventstore.event_count"])
	}
	if attrs["db.system"] != "sqlite" {
		t.Errorf("expected db.system sqlite, got %q", attrs["db.system"])
	}
}

func TestRepository_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.MustNewCollector(reg)

	repo, _ := newTestRepository(t, sqlstore.WithMetrics(collector))
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("e", 3))
	_ = repo.AppendToStream(ctx, newEvents("e", 1), "s", es.Auto())
	_ = repo.LinkToStream(ctx, []string{"e-0"}, "t", es.Auto())
	_ = repo.LinkToStream(ctx, []string{"missing"}, "t", es.Auto())
	_ = repo.DeleteStream(ctx, "t")

	// Names and label sets are checked against the exposition format.
	expected := `
# HELP eventstore_events_written_total Total number of events appended or linked by successful operations.
# TYPE eventstore_events_written_total counter
eventstore_events_written_total{operation="append"} 3
eventstore_events_written_total{operation="link"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventstore_events_written_total"); err != nil {
		t.Errorf("unexpected events_written metric: %v", err)
	}

	expected = `
# HELP eventstore_stream_deletes_total Total number of stream deletions.
# TYPE eventstore_stream_deletes_total counter
eventstore_stream_deletes_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventstore_stream_deletes_total"); err != nil {
		t.Errorf("unexpected stream_deletes metric: %v", err)
	}

	if n := testutil.CollectAndCount(reg, "eventstore_operation_duration_seconds"); n != 3 {
		t.Errorf("expected duration series for append, link and delete, got %d", n)
	}
}

func TestRepository_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := es.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	repo, _ := newTestRepository(t, sqlstore.WithLogger(logger))
	ctx := context.Background()

	mustAppend(t, repo, "orders", es.Auto(), newEvents("e", 2))
	_ = repo.AppendToStream(ctx, newEvents("e", 1), "orders", es.Auto())

	out := buf.String()
	for _, want := range []string{
		`msg="append starting" stream=orders event_count=2 expected_version=Auto`,
		`msg="version resolved" stream=orders base_version=-1 next_position=0`,
		`msg="events added to stream" stream=orders event_count=2 global=true position_range=0-1`,
		`msg="unique constraint violated" stream=orders violation=DuplicateEvent`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q\n%s", want, out)
		}
	}
}
