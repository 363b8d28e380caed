package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolbridge/skolbridge/internal/client"
	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/infrastructure/persistence/memory"
)

// capturingBus records published events for assertions.
type capturingBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *capturingBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *capturingBus) byType(eventType shared.EventType) []shared.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []shared.Event
	for _, e := range b.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

var testClock = func() time.Time {
	return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
}

// newTestClients wires one child against the given server.
func newTestClients(t *testing.T, serverURL string, bus shared.EventPublisher) []*client.AuthenticatedClient {
	t.Helper()

	rec := children.Record{
		UserID:       "u1",
		Username:     "parent1",
		Name:         "Jan",
		Surname:      "Novak",
		School:       "ZS Test",
		Server:       serverURL,
		AccessToken:  "acc",
		RefreshToken: "ref",
	}
	repo := memory.NewOptionsRepository()
	repo.Seed(map[string]children.Record{"child_1": rec})

	config := client.DefaultPollContextConfig(repo, bus)
	config.RateLimiter.RequestsPerSecond = 1000
	config.RateLimiter.BurstSize = 1000
	config.RateLimiter.MinInterval = 0
	pc := client.NewPollContext(config)

	child, err := children.NewChild(rec)
	require.NoError(t, err)

	return []*client.AuthenticatedClient{client.NewAuthenticatedClient(pc, child, "child_1")}
}

func marksTestConfig(bus shared.EventPublisher) MarksConfig {
	config := DefaultMarksConfig()
	config.Seen = memory.NewSeenStore()
	config.Bus = bus
	config.Clock = testClock
	return config
}

func marksPayload() string {
	return `{
		"Subjects": [
			{
				"Subject": {"Id": "MAT01", "Abbrev": "MA", "Name": "Mathematics"},
				"Marks": [
					{"Id": "m1", "MarkDate": "2026-01-10", "MarkText": "1", "Weight": 2},
					{"Id": "m2", "MarkDate": "2026-01-14", "MarkText": "2"}
				]
			}
		]
	}`
}

func TestMarksCoordinator_Refresh_AnnotatesAndFiresExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-09-01", r.URL.Query().Get("from"), "window starts at school year")
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))

	require.NoError(t, c.Refresh(context.Background()))

	snap := c.Data()
	require.NotNil(t, snap)
	key := children.ComposeKey(srv.URL, "u1")
	cm := snap.Children[key]
	require.NotNil(t, cm)
	require.Len(t, cm.Flat, 2)

	// Descending by date, both new on the first observation.
	assert.Equal(t, "m2", cm.Flat[0].ID)
	assert.True(t, cm.Flat[0].IsNew)
	assert.True(t, cm.Flat[1].IsNew)
	assert.Len(t, bus.byType(shared.EventMarkNew), 2)

	// The second cycle reports the same records as already seen and
	// stays silent.
	require.NoError(t, c.Refresh(context.Background()))
	cm = c.Data().Children[key]
	assert.False(t, cm.Flat[0].IsNew)
	assert.False(t, cm.Flat[1].IsNew)
	assert.Len(t, bus.byType(shared.EventMarkNew), 2)
}

func TestMarksCoordinator_EmptyMarkID_NeverNew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"Subjects": [
				{
					"Subject": {"Id": "MAT01", "Abbrev": "MA", "Name": "Mathematics"},
					"Marks": [{"MarkDate": "2026-01-10", "MarkText": "1"}]
				}
			]
		}`))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))

	require.NoError(t, c.Refresh(context.Background()))

	key := children.ComposeKey(srv.URL, "u1")
	cm := c.Data().Children[key]
	require.Len(t, cm.Flat, 1)
	assert.False(t, cm.Flat[0].IsNew)
	assert.Empty(t, bus.byType(shared.EventMarkNew))
}

func TestMarksCoordinator_FailedCycle_KeepsPreviousSnapshot(t *testing.T) {
	var failing bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failing
		mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))

	require.NoError(t, c.Refresh(context.Background()))
	first := c.Data()
	require.NotNil(t, first)

	mu.Lock()
	failing = true
	mu.Unlock()

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRefreshFailed)
	assert.Same(t, first, c.Data(), "failed cycle must not touch the snapshot")
	assert.Len(t, bus.byType(shared.EventSyncFailed), 1)
}

func TestMarksCoordinator_MarkSeen_SuppressesFutureNovelty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	// Acknowledged before ever polled; idempotent.
	require.NoError(t, c.MarkSeen(context.Background(), key, "m1"))
	require.NoError(t, c.MarkSeen(context.Background(), key, "m1"))

	require.NoError(t, c.Refresh(context.Background()))

	cm := c.Data().Children[key]
	require.Len(t, cm.Flat, 2)
	assert.True(t, cm.Flat[0].IsNew, "m2 was not acknowledged")
	assert.False(t, cm.Flat[1].IsNew, "m1 was acknowledged")
	assert.Len(t, bus.byType(shared.EventMarkNew), 1)
}

func TestMarksCoordinator_Select(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	_, err := c.Select(key, 10)
	assert.ErrorIs(t, err, shared.ErrNoSnapshot)

	require.NoError(t, c.Refresh(context.Background()))

	selected, err := c.Select(key, 1)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "m2", selected[0].ID, "limit keeps the most recent")

	all, err := c.Select(key, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = c.Select(children.Key("other|u9"), 1)
	assert.ErrorIs(t, err, shared.ErrUnknownChildKey)
}

func TestMarksCoordinator_AcknowledgeSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	count, err := c.AcknowledgeSubject(context.Background(), key, "MAT01")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, c.Refresh(context.Background()))
	cm := c.Data().Children[key]
	assert.False(t, cm.Flat[0].IsNew)
	assert.False(t, cm.Flat[1].IsNew)
}

func TestMarksCoordinator_Subjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	subjects, err := c.Subjects(key)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "MAT01", subjects[0].Key)
	assert.Equal(t, "MA", subjects[0].Label)
}

func TestCoordinator_JitteredIntervalStaysWithinBounds(t *testing.T) {
	for i := 0; i < 20; i++ {
		config := marksTestConfig(&capturingBus{})
		config.BaseInterval = 30 * time.Minute
		c := NewMarksCoordinator(config, nil)

		assert.GreaterOrEqual(t, c.Interval(), 27*time.Minute)
		assert.LessOrEqual(t, c.Interval(), 33*time.Minute)
	}
}

func TestMarksCoordinator_SummaryAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	cm := c.Data().Children[key]
	assert.Equal(t, 2, cm.Summary.Overall.Count)
	assert.Equal(t, 2, cm.Summary.Overall.NumericCount)
	// avg of 1 and 2; wavg (1*2 + 2*1) / 3.
	assert.InDelta(t, 1.5, cm.Summary.Overall.Average, 1e-9)
	assert.InDelta(t, 4.0/3.0, cm.Summary.Overall.WeightedAverage, 1e-9)
}

func TestSyncCompletedEvent_CarriesCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marksPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMarksCoordinator(marksTestConfig(bus), newTestClients(t, srv.URL, bus))

	require.NoError(t, c.Refresh(context.Background()))

	completed := bus.byType(shared.EventSyncCompleted)
	require.Len(t, completed, 1)
	event, ok := completed[0].(shared.SyncCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "marks", event.Coordinator)
	assert.Equal(t, 1, event.Children)
	assert.Equal(t, 2, event.Records)
	assert.Equal(t, 2, event.NewRecords)

	payload, err := json.Marshal(event.Payload())
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"coordinator":"marks"`)
}
