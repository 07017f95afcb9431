package sync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/gcal"
	"github.com/hweiling/tripline/internal/sync"
	"github.com/hweiling/tripline/internal/workspace"
)

// ---- hand-written test doubles ---------------------------------------------
// Each method is a function field — set only the ones your test needs.

type mockTripStore struct {
	getByChannel func(ctx context.Context, channelID string) (domain.Trip, error)
	clearToken   func(ctx context.Context, id uuid.UUID) error
}

func (m *mockTripStore) GetByCalendarChannelID(ctx context.Context, channelID string) (domain.Trip, error) {
	return m.getByChannel(ctx, channelID)
}
func (m *mockTripStore) ClearCalendarSyncToken(ctx context.Context, id uuid.UUID) error {
	return m.clearToken(ctx, id)
}

type mockItemFinder struct {
	getByBinding func(ctx context.Context, tripID uuid.UUID, source domain.Source, externalID string) (domain.ItineraryItem, error)
}

func (m *mockItemFinder) GetByBinding(ctx context.Context, tripID uuid.UUID, source domain.Source, externalID string) (domain.ItineraryItem, error) {
	return m.getByBinding(ctx, tripID, source, externalID)
}

type mockBatchStore struct {
	applyBatch func(ctx context.Context, tripID uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error)
}

func (m *mockBatchStore) ApplyBatch(ctx context.Context, tripID uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error) {
	return m.applyBatch(ctx, tripID, staged, cursor)
}

type mockWorkspaceStore struct {
	query  func(ctx context.Context, databaseID string, since time.Time) ([]workspace.Row, error)
	create func(ctx context.Context, databaseID string, item domain.ItineraryItem) (string, error)
	update func(ctx context.Context, pageID string, fields domain.ItemFields) error
}

func (m *mockWorkspaceStore) QueryUpdatedSince(ctx context.Context, databaseID string, since time.Time) ([]workspace.Row, error) {
	return m.query(ctx, databaseID, since)
}
func (m *mockWorkspaceStore) CreateItem(ctx context.Context, databaseID string, item domain.ItineraryItem) (string, error) {
	return m.create(ctx, databaseID, item)
}
func (m *mockWorkspaceStore) UpdateItem(ctx context.Context, pageID string, fields domain.ItemFields) error {
	return m.update(ctx, pageID, fields)
}

type mockCalendarStore struct {
	list   func(ctx context.Context, calendarID, syncToken string) ([]gcal.Change, string, error)
	insert func(ctx context.Context, calendarID string, item domain.ItineraryItem) (string, error)
	patch  func(ctx context.Context, calendarID, eventID string, item domain.ItineraryItem) error
}

func (m *mockCalendarStore) ListChanges(ctx context.Context, calendarID, syncToken string) ([]gcal.Change, string, error) {
	return m.list(ctx, calendarID, syncToken)
}
func (m *mockCalendarStore) InsertEvent(ctx context.Context, calendarID string, item domain.ItineraryItem) (string, error) {
	return m.insert(ctx, calendarID, item)
}
func (m *mockCalendarStore) PatchEvent(ctx context.Context, calendarID, eventID string, item domain.ItineraryItem) error {
	return m.patch(ctx, calendarID, eventID, item)
}

type mockBindingStore struct {
	setWorkspace func(ctx context.Context, itemID uuid.UUID, externalID string) error
	setCalendar  func(ctx context.Context, itemID uuid.UUID, externalID string) error
}

func (m *mockBindingStore) SetWorkspaceItemID(ctx context.Context, itemID uuid.UUID, externalID string) error {
	return m.setWorkspace(ctx, itemID, externalID)
}
func (m *mockBindingStore) SetCalendarEventID(ctx context.Context, itemID uuid.UUID, externalID string) error {
	return m.setCalendar(ctx, itemID, externalID)
}

// compile-time checks: the doubles must satisfy the engine interfaces.
var (
	_ sync.TripStore      = (*mockTripStore)(nil)
	_ sync.ItemFinder     = (*mockItemFinder)(nil)
	_ sync.BatchStore     = (*mockBatchStore)(nil)
	_ sync.WorkspaceStore = (*mockWorkspaceStore)(nil)
	_ sync.CalendarStore  = (*mockCalendarStore)(nil)
	_ sync.BindingStore   = (*mockBindingStore)(nil)
)

// ---- fixtures --------------------------------------------------------------

var (
	testT1 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testT2 = testT1.Add(10 * time.Minute)
)

func strptr(s string) *string { return &s }

func boundTrip() domain.Trip {
	return domain.Trip{
		ID:                  uuid.New(),
		Title:               "3/10~3/16 Hokkaido",
		WorkspaceDatabaseID: strptr("ws-db-1"),
		WorkspacePageID:     strptr("ws-page-1"),
		CalendarID:          strptr("cal-1"),
		CalendarChannelID:   strptr("chan-1"),
	}
}

func boundItem(trip domain.Trip) domain.ItineraryItem {
	return domain.ItineraryItem{
		ID:              uuid.New(),
		TripID:          trip.ID,
		ItemDate:        "2026-03-11",
		Title:           "Sushi dinner",
		StartTime:       "18:00",
		WorkspaceItemID: strptr("ws-item-1"),
		CalendarEventID: strptr("cal-evt-1"),
		UpdatedAt:       testT1,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv bundles a Runner with all its doubles so individual tests only
// override the behavior they exercise.
type testEnv struct {
	trips    *mockTripStore
	items    *mockItemFinder
	batches  *mockBatchStore
	ws       *mockWorkspaceStore
	cal      *mockCalendarStore
	bindings *mockBindingStore
	runner   *sync.Runner
}

func newTestEnv() *testEnv {
	env := &testEnv{
		trips: &mockTripStore{},
		items: &mockItemFinder{
			getByBinding: func(context.Context, uuid.UUID, domain.Source, string) (domain.ItineraryItem, error) {
				return domain.ItineraryItem{}, domain.ErrNotFound
			},
		},
		batches: &mockBatchStore{
			applyBatch: func(_ context.Context, _ uuid.UUID, _ []domain.StagedMutation, _ domain.CursorUpdate) ([]domain.ItineraryItem, error) {
				return nil, nil
			},
		},
		ws: &mockWorkspaceStore{
			update: func(context.Context, string, domain.ItemFields) error { return nil },
		},
		cal: &mockCalendarStore{
			patch: func(context.Context, string, string, domain.ItineraryItem) error { return nil },
		},
		bindings: &mockBindingStore{},
	}
	log := testLogger()
	prop := sync.NewPropagator(env.ws, env.cal, env.bindings, log)
	env.runner = sync.NewRunner(env.trips, env.items, env.batches, env.ws, env.cal, prop, log)
	return env
}

// ---- workspace cycle -------------------------------------------------------

func TestSyncWorkspaceTrip_NewerEditApplied(t *testing.T) {
	// Workspace row edited at T2 while canonical has T1 < T2: the canonical
	// record is updated, the binding is preserved, and the watermark advances.
	env := newTestEnv()
	trip := boundTrip()
	item := boundItem(trip)

	env.ws.query = func(_ context.Context, dbID string, since time.Time) ([]workspace.Row, error) {
		require.Equal(t, "ws-db-1", dbID)
		return []workspace.Row{{
			ID:         "ws-item-1",
			LastEdited: testT2,
			Fields:     domain.ItemFields{Title: strptr("Sushi dinner (moved)")},
		}}, nil
	}
	env.items.getByBinding = func(_ context.Context, tripID uuid.UUID, source domain.Source, externalID string) (domain.ItineraryItem, error) {
		require.Equal(t, trip.ID, tripID)
		require.Equal(t, domain.SourceWorkspace, source)
		require.Equal(t, "ws-item-1", externalID)
		return item, nil
	}

	var gotStaged []domain.StagedMutation
	var gotCursor domain.CursorUpdate
	env.batches.applyBatch = func(_ context.Context, tripID uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		require.Equal(t, trip.ID, tripID)
		gotStaged = staged
		gotCursor = cursor
		updated := item
		updated.Title = "Sushi dinner (moved)"
		updated.UpdatedAt = testT2
		return []domain.ItineraryItem{updated}, nil
	}

	var patched bool
	env.cal.patch = func(_ context.Context, calID, eventID string, got domain.ItineraryItem) error {
		patched = true
		assert.Equal(t, "cal-1", calID)
		assert.Equal(t, "cal-evt-1", eventID)
		assert.Equal(t, "Sushi dinner (moved)", got.Title)
		return nil
	}
	var wsUpdated bool
	env.ws.update = func(context.Context, string, domain.ItemFields) error {
		wsUpdated = true
		return nil
	}

	err := env.runner.SyncWorkspaceTrip(context.Background(), trip)

	require.NoError(t, err)
	require.Len(t, gotStaged, 1)
	assert.Equal(t, domain.MutationUpdate, gotStaged[0].Kind)
	assert.Equal(t, item.ID, gotStaged[0].ItemID)
	assert.True(t, gotStaged[0].Timestamp.Equal(testT2))
	require.NotNil(t, gotCursor.LastSyncedAt, "watermark must advance with the batch")
	assert.True(t, patched, "calendar mirror must receive the applied change")
	assert.False(t, wsUpdated, "originating store must be excluded from propagation")
}

func TestSyncWorkspaceTrip_EchoIgnored(t *testing.T) {
	// A change we pushed out, read back with an unchanged timestamp, must
	// stage nothing. The cursor still advances so the echo is not re-fetched
	// forever.
	env := newTestEnv()
	trip := boundTrip()
	item := boundItem(trip) // UpdatedAt == testT1

	env.ws.query = func(context.Context, string, time.Time) ([]workspace.Row, error) {
		return []workspace.Row{{ID: "ws-item-1", LastEdited: testT1,
			Fields: domain.ItemFields{Title: strptr("Sushi dinner")}}}, nil
	}
	env.items.getByBinding = func(context.Context, uuid.UUID, domain.Source, string) (domain.ItineraryItem, error) {
		return item, nil
	}

	var gotStaged []domain.StagedMutation
	env.batches.applyBatch = func(_ context.Context, _ uuid.UUID, staged []domain.StagedMutation, _ domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		gotStaged = staged
		return nil, nil
	}

	err := env.runner.SyncWorkspaceTrip(context.Background(), trip)

	require.NoError(t, err)
	assert.Empty(t, gotStaged, "echo must resolve to ignore")
}

func TestSyncWorkspaceTrip_UnboundRowCreates(t *testing.T) {
	// A row created directly in the workspace has no binding yet: exactly
	// one creation is staged carrying the external id.
	env := newTestEnv()
	trip := boundTrip()

	env.ws.query = func(context.Context, string, time.Time) ([]workspace.Row, error) {
		return []workspace.Row{{ID: "ws-item-new", LastEdited: testT2,
			Fields: domain.ItemFields{Title: strptr("Ramen lunch")}}}, nil
	}

	var gotStaged []domain.StagedMutation
	env.batches.applyBatch = func(_ context.Context, _ uuid.UUID, staged []domain.StagedMutation, _ domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		gotStaged = staged
		return nil, nil
	}

	err := env.runner.SyncWorkspaceTrip(context.Background(), trip)

	require.NoError(t, err)
	require.Len(t, gotStaged, 1)
	assert.Equal(t, domain.MutationCreate, gotStaged[0].Kind)
	assert.Equal(t, "ws-item-new", gotStaged[0].ExternalID)
	assert.Equal(t, domain.SourceWorkspace, gotStaged[0].Source)
}

func TestSyncWorkspaceTrip_FetchFailureLeavesCursorAlone(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()

	env.ws.query = func(context.Context, string, time.Time) ([]workspace.Row, error) {
		return nil, errors.New("rate limited")
	}
	env.batches.applyBatch = func(context.Context, uuid.UUID, []domain.StagedMutation, domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		t.Fatal("no batch must be committed when the fetch fails")
		return nil, nil
	}

	err := env.runner.SyncWorkspaceTrip(context.Background(), trip)

	assert.Error(t, err)
}

func TestSyncWorkspaceTrip_NoBindingIsNoop(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()
	trip.WorkspaceDatabaseID = nil

	env.ws.query = func(context.Context, string, time.Time) ([]workspace.Row, error) {
		t.Fatal("must not query the workspace without a binding")
		return nil, nil
	}

	require.NoError(t, env.runner.SyncWorkspaceTrip(context.Background(), trip))
}

// ---- batch runner ----------------------------------------------------------

func TestRunBatch_MalformedCandidateSkippedNotFatal(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()

	candidates := []domain.CandidateChange{
		{Source: domain.SourceWorkspace, TripID: trip.ID, ExternalID: "", Timestamp: testT2},      // no external id
		{Source: domain.SourceWorkspace, TripID: trip.ID, ExternalID: "ws-x"},                     // zero timestamp
		{Source: domain.SourceWorkspace, TripID: trip.ID, ExternalID: "ws-ok", Timestamp: testT2}, // fine
	}

	var gotStaged []domain.StagedMutation
	env.batches.applyBatch = func(_ context.Context, _ uuid.UUID, staged []domain.StagedMutation, _ domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		gotStaged = staged
		return nil, nil
	}

	err := env.runner.RunBatch(context.Background(), trip, domain.SourceWorkspace, candidates, domain.CursorUpdate{})

	require.NoError(t, err, "malformed candidates must not abort the batch")
	require.Len(t, gotStaged, 1)
	assert.Equal(t, "ws-ok", gotStaged[0].ExternalID)
}

func TestRunBatch_DeletedCandidateRecognizedAndSkipped(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()

	var gotStaged []domain.StagedMutation
	env.batches.applyBatch = func(_ context.Context, _ uuid.UUID, staged []domain.StagedMutation, _ domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		gotStaged = staged
		return nil, nil
	}

	err := env.runner.RunBatch(context.Background(), trip, domain.SourceCalendar, []domain.CandidateChange{
		{Source: domain.SourceCalendar, TripID: trip.ID, ExternalID: "cal-evt-1", Timestamp: testT2, Deleted: true},
	}, domain.CursorUpdate{})

	require.NoError(t, err)
	assert.Empty(t, gotStaged)
}

func TestRunBatch_StorageFailureAbortsBatch(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()

	env.batches.applyBatch = func(context.Context, uuid.UUID, []domain.StagedMutation, domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		return nil, errors.New("connection reset")
	}

	err := env.runner.RunBatch(context.Background(), trip, domain.SourceWorkspace, nil, domain.CursorUpdate{})

	assert.Error(t, err)
}

// ---- calendar cycle --------------------------------------------------------

func TestSyncCalendarByChannel_UnknownChannelIsNotFound(t *testing.T) {
	env := newTestEnv()

	env.trips.getByChannel = func(_ context.Context, channelID string) (domain.Trip, error) {
		return domain.Trip{}, domain.ErrNotFound
	}
	env.cal.list = func(context.Context, string, string) ([]gcal.Change, string, error) {
		t.Fatal("must not fetch changes for an unknown channel")
		return nil, "", nil
	}

	err := env.runner.SyncCalendarByChannel(context.Background(), "chan-unknown")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncCalendarByChannel_PersistsNextSyncToken(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()
	trip.CalendarSyncToken = strptr("tok-old")

	env.trips.getByChannel = func(_ context.Context, channelID string) (domain.Trip, error) {
		require.Equal(t, "chan-1", channelID)
		return trip, nil
	}
	env.cal.list = func(_ context.Context, calID, token string) ([]gcal.Change, string, error) {
		require.Equal(t, "cal-1", calID)
		require.Equal(t, "tok-old", token, "stored token bounds the incremental fetch")
		return []gcal.Change{{
			EventID: "cal-evt-new",
			Updated: testT2,
			Fields:  domain.ItemFields{Title: strptr("Night market")},
		}}, "tok-new", nil
	}

	var gotCursor domain.CursorUpdate
	var gotStaged []domain.StagedMutation
	env.batches.applyBatch = func(_ context.Context, _ uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		gotStaged = staged
		gotCursor = cursor
		return nil, nil
	}

	err := env.runner.SyncCalendarByChannel(context.Background(), "chan-1")

	require.NoError(t, err)
	require.NotNil(t, gotCursor.SyncToken)
	assert.Equal(t, "tok-new", *gotCursor.SyncToken)
	require.Len(t, gotStaged, 1)
	assert.Equal(t, domain.MutationCreate, gotStaged[0].Kind)
}

func TestSyncCalendarByChannel_ExpiredTokenClearedAndSurfaced(t *testing.T) {
	env := newTestEnv()
	trip := boundTrip()
	trip.CalendarSyncToken = strptr("tok-stale")

	env.trips.getByChannel = func(context.Context, string) (domain.Trip, error) { return trip, nil }
	env.cal.list = func(context.Context, string, string) ([]gcal.Change, string, error) {
		return nil, "", domain.ErrSyncTokenExpired
	}

	var cleared bool
	env.trips.clearToken = func(_ context.Context, id uuid.UUID) error {
		cleared = true
		assert.Equal(t, trip.ID, id)
		return nil
	}
	env.batches.applyBatch = func(context.Context, uuid.UUID, []domain.StagedMutation, domain.CursorUpdate) ([]domain.ItineraryItem, error) {
		t.Fatal("no batch must run on an expired token")
		return nil, nil
	}

	err := env.runner.SyncCalendarByChannel(context.Background(), "chan-1")

	assert.ErrorIs(t, err, domain.ErrSyncTokenExpired)
	assert.True(t, cleared, "expired token must be cleared for the future full resync")
}
