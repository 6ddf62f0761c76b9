package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/adapters/sqlite"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/store/sqlstore"
)

func TestAppendToStream_AutoAssignsDensePositions(t *testing.T) {
	repo, db := newTestRepository(t)

	mustAppend(t, repo, "orders-1", es.Auto(), newEvents("a", 3))
	mustAppend(t, repo, "orders-1", es.Auto(), newEvents("b", 2))
	mustAppend(t, repo, "orders-1", es.Auto(), newEvents("c", 1))

	got := positions(t, db, "orders-1")
	want := []int64{0, 1, 2, 3, 4, 5}
	if !slices.Equal(got, want) {
		t.Errorf("expected positions %v, got %v", want, got)
	}
}

func TestAppendToStream_ExpectedVersions(t *testing.T) {
	tests := []struct {
		name     string
		existing int
		expected es.ExpectedVersion
		wantErr  error
		wantPos  []int64
	}{
		{"none on fresh stream", 0, es.None(), nil, []int64{0, 1}},
		{"none on existing stream", 2, es.None(), store.ErrWrongExpectedEventVersion, []int64{0, 1}},
		{"exact matches head", 2, es.Exact(1), nil, []int64{0, 1, 2, 3}},
		{"exact behind head", 2, es.Exact(0), store.ErrWrongExpectedEventVersion, []int64{0, 1}},
		{"exact ahead of head", 2, es.Exact(4), store.ErrWrongExpectedEventVersion, []int64{0, 1}},
		{"exact on fresh stream", 0, es.Exact(0), store.ErrWrongExpectedEventVersion, nil},
		{"auto on existing stream", 2, es.Auto(), nil, []int64{0, 1, 2, 3}},
		{"auto on fresh stream", 0, es.Auto(), nil, []int64{0, 1}},
		{"any leaves positions null", 2, es.Any(), nil, []int64{0, 1, -1, -1}},
		{"zero value is invalid", 0, es.ExpectedVersion{}, store.ErrInvalidExpectedVersion, nil},
		{"negative exact is invalid", 0, es.Exact(-1), store.ErrInvalidExpectedVersion, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, db := newTestRepository(t)
			if tt.existing > 0 {
				mustAppend(t, repo, "s", es.None(), newEvents("existing", tt.existing))
			}

			err := repo.AppendToStream(context.Background(), newEvents("new", 2), "s", tt.expected)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got := positions(t, db, "s"); !slices.Equal(got, tt.wantPos) {
				t.Errorf("expected positions %v, got %v", tt.wantPos, got)
			}
		})
	}
}

func TestAppendToStream_ExactComparesWithLastPosition(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()
	mustAppend(t, repo, "s", es.None(), newEvents("a", 1))

	// A membership written outside the store leaves a hole at positions 1 to 4.
	tables := store.DefaultTables()
	if _, err := db.Exec(fmt.Sprintf(`INSERT INTO %s (stream, position, event_id) VALUES (?, ?, ?)`, tables.Streams),
		"s", 5, "external"); err != nil {
		t.Fatalf("Failed to insert membership: %v", err)
	}

	// Position 1 is free, but the stream head is 5.
	err := repo.AppendToStream(ctx, newEvents("stale", 1), "s", es.Exact(0))
	if !errors.Is(err, store.ErrWrongExpectedEventVersion) {
		t.Fatalf("expected ErrWrongExpectedEventVersion, got %v", err)
	}
	if got := positions(t, db, "s"); !slices.Equal(got, []int64{0, 5}) {
		t.Fatalf("expected positions [0 5], got %v", got)
	}

	mustAppend(t, repo, "s", es.Exact(5), newEvents("b", 1))
	if got := positions(t, db, "s"); !slices.Equal(got, []int64{0, 5, 6}) {
		t.Errorf("expected positions [0 5 6], got %v", got)
	}
}

func TestAppendToStream_NoneAfterAnyAppend(t *testing.T) {
	repo, db := newTestRepository(t)

	mustAppend(t, repo, "s", es.Any(), newEvents("a", 2))

	err := repo.AppendToStream(context.Background(), newEvents("b", 1), "s", es.None())
	if !errors.Is(err, store.ErrWrongExpectedEventVersion) {
		t.Fatalf("expected ErrWrongExpectedEventVersion, got %v", err)
	}
	if got := positions(t, db, "s"); !slices.Equal(got, []int64{-1, -1}) {
		t.Errorf("expected two null positions, got %v", got)
	}
}

func TestAppendToStream_AnyAllowsRepeatedAppends(t *testing.T) {
	repo, db := newTestRepository(t)

	mustAppend(t, repo, "s", es.Any(), newEvents("a", 2))
	mustAppend(t, repo, "s", es.Any(), newEvents("b", 2))

	if got := positions(t, db, "s"); !slices.Equal(got, []int64{-1, -1, -1, -1}) {
		t.Errorf("expected four null positions, got %v", got)
	}
}

func TestAppendToStream_InvalidArguments(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		events   []es.Event
		stream   string
		expected es.ExpectedVersion
		wantErr  error
	}{
		{"empty stream name", newEvents("a", 1), "", es.Auto(), store.ErrIncorrectStreamData},
		{"no events", nil, "s", es.Auto(), store.ErrNoEvents},
		{"global stream with auto", newEvents("a", 1), es.GlobalStream, es.Auto(), store.ErrInvalidExpectedVersion},
		{"global stream with none", newEvents("a", 1), es.GlobalStream, es.None(), store.ErrInvalidExpectedVersion},
		{"global stream with exact", newEvents("a", 1), es.GlobalStream, es.Exact(0), store.ErrInvalidExpectedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.AppendToStream(ctx, tt.events, tt.stream, tt.expected)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if named, global := countMemberships(t, db); named != 0 || global != 0 {
		t.Errorf("expected no memberships after rejected appends, got %d named and %d global", named, global)
	}
}

func TestAppendToStream_GlobalMembershipPerEvent(t *testing.T) {
	repo, db := newTestRepository(t)

	mustAppend(t, repo, "a", es.Auto(), newEvents("a", 3))
	mustAppend(t, repo, "b", es.Auto(), newEvents("b", 2))

	named, global := countMemberships(t, db)
	if named != 5 || global != 5 {
		t.Errorf("expected 5 named and 5 global memberships, got %d and %d", named, global)
	}
}

func TestAppendToStream_GlobalStreamWithAny(t *testing.T) {
	repo, db := newTestRepository(t)

	mustAppend(t, repo, es.GlobalStream, es.Any(), newEvents("g", 2))

	named, global := countMemberships(t, db)
	if named != 0 || global != 2 {
		t.Errorf("expected 0 named and 2 global memberships, got %d and %d", named, global)
	}
}

func TestAppendToStream_DuplicateEventID(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s1", es.Auto(), newEvents("a", 1))

	// The record already exists, so a second append of the same id fails
	// whichever stream it targets.
	err := repo.AppendToStream(ctx, newEvents("a", 1), "s2", es.Auto())
	if !errors.Is(err, store.ErrEventDuplicatedInStream) {
		t.Fatalf("expected ErrEventDuplicatedInStream, got %v", err)
	}
	if got := positions(t, db, "s2"); len(got) != 0 {
		t.Errorf("expected no memberships in s2, got %v", got)
	}
}

func TestAppendToStream_BatchIsAtomic(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("a", 1))

	// Second element collides with an existing record.
	batch := []es.Event{
		{EventID: "fresh", EventType: "TestEvent", Data: map[string]any{}},
		{EventID: "a-0", EventType: "TestEvent", Data: map[string]any{}},
	}
	err := repo.AppendToStream(ctx, batch, "s", es.Auto())
	if !errors.Is(err, store.ErrEventDuplicatedInStream) {
		t.Fatalf("expected ErrEventDuplicatedInStream, got %v", err)
	}

	ok, err := repo.HasEvent(ctx, "fresh")
	if err != nil {
		t.Fatalf("HasEvent failed: %v", err)
	}
	if ok {
		t.Error("expected the first event of the rejected batch to be rolled back")
	}
	if named, global := countMemberships(t, db); named != 1 || global != 1 {
		t.Errorf("expected 1 named and 1 global membership, got %d and %d", named, global)
	}
}

func TestAppendToStream_ConcurrentExactWritersOneWins(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("seed", 3))

	const writers = 5
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			errs[w] = repo.AppendToStream(ctx, newEvents(fmt.Sprintf("w%d", w), 1), "s", es.Exact(2))
		}(w)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrWrongExpectedEventVersion):
			if !store.IsRetryable(err) {
				t.Errorf("expected conflict to be retryable: %v", err)
			}
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one writer to succeed, got %d", succeeded)
	}
	if got := positions(t, db, "s"); !slices.Equal(got, []int64{0, 1, 2, 3}) {
		t.Errorf("expected positions [0 1 2 3], got %v", got)
	}
}

func TestAppendToStream_ConcurrentAutoWritersStayDense(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	const writers = 4
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Writers serialize on SQLite; a lost race is retried with a freshly resolved version.
			for {
				err := repo.AppendToStream(ctx, newEvents(fmt.Sprintf("w%d", w), 2), "s", es.Auto())
				if err == nil {
					return
				}
				if !store.IsRetryable(err) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	got := positions(t, db, "s")
	want := []int64{0, 1, 2, 3, 4, 5, 6, 7}
	if !slices.Equal(got, want) {
		t.Errorf("expected positions %v, got %v", want, got)
	}
}

func TestLinkToStream(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	source := newEvents("src", 3)
	mustAppend(t, repo, "source", es.Auto(), source)

	if err := repo.LinkToStream(ctx, eventIDs(source), "linked", es.None()); err != nil {
		t.Fatalf("LinkToStream failed: %v", err)
	}

	if got := positions(t, db, "linked"); !slices.Equal(got, []int64{0, 1, 2}) {
		t.Errorf("expected positions [0 1 2], got %v", got)
	}
	if named, global := countMemberships(t, db); named != 6 || global != 3 {
		t.Errorf("expected 6 named and 3 global memberships, got %d and %d", named, global)
	}

	events, err := repo.ReadStreamEventsForward(ctx, "linked")
	if err != nil {
		t.Fatalf("ReadStreamEventsForward failed: %v", err)
	}
	if got := readIDs(events); !slices.Equal(got, eventIDs(source)) {
		t.Errorf("expected linked events %v, got %v", eventIDs(source), got)
	}
}

func TestLinkToStream_MissingEventIsAllOrNothing(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "source", es.Auto(), newEvents("src", 2))

	err := repo.LinkToStream(ctx, []string{"src-0", "missing-1", "missing-2", "src-1"}, "linked", es.Auto())
	if !errors.Is(err, store.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	var notFound *store.EventNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *store.EventNotFoundError, got %T", err)
	}
	if notFound.EventID != "missing-1" {
		t.Errorf("expected first missing id missing-1, got %s", notFound.EventID)
	}
	if got := positions(t, db, "linked"); len(got) != 0 {
		t.Errorf("expected no memberships in linked, got %v", got)
	}
}

func TestLinkToStream_Conflicts(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("a", 2))
	mustAppend(t, repo, "other", es.Auto(), newEvents("b", 1))

	err := repo.LinkToStream(ctx, []string{"a-0"}, "s", es.Auto())
	if !errors.Is(err, store.ErrEventDuplicatedInStream) {
		t.Errorf("expected ErrEventDuplicatedInStream for an event already in the stream, got %v", err)
	}

	err = repo.LinkToStream(ctx, []string{"b-0"}, "s", es.Exact(0))
	if !errors.Is(err, store.ErrWrongExpectedEventVersion) {
		t.Errorf("expected ErrWrongExpectedEventVersion for a taken position, got %v", err)
	}

	err = repo.LinkToStream(ctx, nil, "s", es.Auto())
	if !errors.Is(err, store.ErrNoEvents) {
		t.Errorf("expected ErrNoEvents, got %v", err)
	}
}

func TestLinkToStream_GlobalStream(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("a", 2))

	if err := repo.LinkToStream(ctx, []string{"a-0", "a-1"}, es.GlobalStream, es.Any()); err != nil {
		t.Fatalf("LinkToStream to global stream failed: %v", err)
	}
	if _, global := countMemberships(t, db); global != 2 {
		t.Errorf("expected global memberships to stay at 2, got %d", global)
	}

	err := repo.LinkToStream(ctx, []string{"nope"}, es.GlobalStream, es.Any())
	if !errors.Is(err, store.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}

	err = repo.LinkToStream(ctx, []string{"a-0"}, es.GlobalStream, es.Auto())
	if !errors.Is(err, store.ErrInvalidExpectedVersion) {
		t.Errorf("expected ErrInvalidExpectedVersion, got %v", err)
	}
}

func TestDeleteStream(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "test_1", es.Auto(), newEvents("one", 4))
	mustAppend(t, repo, "test_2", es.Auto(), newEvents("two", 4))

	if named, global := countMemberships(t, db); named != 8 || global != 8 {
		t.Fatalf("expected 8 named and 8 global memberships, got %d and %d", named, global)
	}

	if err := repo.DeleteStream(ctx, "test_2"); err != nil {
		t.Fatalf("DeleteStream failed: %v", err)
	}

	named, global := countMemberships(t, db)
	if named != 4 || global != 8 {
		t.Errorf("expected 4 named and 8 global memberships, got %d and %d", named, global)
	}
	if got := positions(t, db, "test_1"); !slices.Equal(got, []int64{0, 1, 2, 3}) {
		t.Errorf("expected test_1 untouched, got positions %v", got)
	}

	ok, err := repo.HasEvent(ctx, "two-0")
	if err != nil {
		t.Fatalf("HasEvent failed: %v", err)
	}
	if !ok {
		t.Error("expected record of deleted stream to survive")
	}

	all, err := repo.ReadAllStreamsForward(ctx, "", 100)
	if err != nil {
		t.Fatalf("ReadAllStreamsForward failed: %v", err)
	}
	if len(all) != 8 {
		t.Errorf("expected 8 events in the global stream, got %d", len(all))
	}

	// Idempotent
	if err := repo.DeleteStream(ctx, "test_2"); err != nil {
		t.Errorf("second DeleteStream failed: %v", err)
	}
	if err := repo.DeleteStream(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteStream of unknown stream failed: %v", err)
	}
	if err := repo.DeleteStream(ctx, ""); !errors.Is(err, store.ErrIncorrectStreamData) {
		t.Errorf("expected ErrIncorrectStreamData, got %v", err)
	}
}

func TestDeleteStream_GlobalStreamRefused(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("a", 3))

	err := repo.DeleteStream(ctx, es.GlobalStream)
	if !errors.Is(err, store.ErrIncorrectStreamData) {
		t.Fatalf("expected ErrIncorrectStreamData, got %v", err)
	}

	if named, global := countMemberships(t, db); named != 3 || global != 3 {
		t.Errorf("expected 3 named and 3 global memberships, got %d and %d", named, global)
	}
	all, err := repo.ReadAllStreamsForward(ctx, "a-0", 10)
	if err != nil {
		t.Fatalf("ReadAllStreamsForward failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected checkpoint a-0 to still resolve with 2 events after it, got %d", len(all))
	}
}

func TestDeleteStream_ThenAppendRestartsPositions(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	mustAppend(t, repo, "s", es.Auto(), newEvents("a", 2))
	if err := repo.DeleteStream(ctx, "s"); err != nil {
		t.Fatalf("DeleteStream failed: %v", err)
	}
	mustAppend(t, repo, "s", es.None(), newEvents("b", 2))

	if got := positions(t, db, "s"); !slices.Equal(got, []int64{0, 1}) {
		t.Errorf("expected positions [0 1], got %v", got)
	}
}

func TestNew_SchemaVerification(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := sqlite.NewRepository(ctx, db)
	if !errors.Is(err, store.ErrSchemaInvalid) {
		t.Fatalf("expected ErrSchemaInvalid on an empty database, got %v", err)
	}

	if _, err := sqlite.NewRepository(ctx, db, sqlstore.WithoutSchemaVerification()); err != nil {
		t.Errorf("expected construction without verification to succeed, got %v", err)
	}
}

func TestNew_SchemaVerificationReportsMissingIndex(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)
	tables := repo.Config().Tables

	if _, err := db.Exec(fmt.Sprintf(`DROP INDEX %s`, tables.StreamPositionIndex())); err != nil {
		t.Fatalf("Failed to drop index: %v", err)
	}

	_, err := sqlite.NewRepository(ctx, db)
	if !errors.Is(err, store.ErrSchemaInvalid) {
		t.Fatalf("expected ErrSchemaInvalid, got %v", err)
	}
}

func TestNew_InvalidTables(t *testing.T) {
	db := openTestDB(t)

	_, err := sqlite.NewRepository(context.Background(), db,
		sqlstore.WithoutSchemaVerification(),
		sqlstore.WithTables(store.Tables{Records: "x", Streams: "x", Global: "y"}))
	if err == nil {
		t.Fatal("expected error for tables sharing a name")
	}
}
