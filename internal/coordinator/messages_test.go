package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/infrastructure/persistence/memory"
)

func messagesTestConfig(bus shared.EventPublisher) MessagesConfig {
	config := DefaultMessagesConfig()
	config.Seen = memory.NewSeenStore()
	config.Bus = bus
	config.Clock = testClock
	return config
}

func komensPayload() string {
	return `{
		"Messages": [
			{"Id": "msg1", "Title": "Trip", "SentDate": "2026-01-10", "Sender": {"Name": "Teacher A"}},
			{"Title": "No id here", "SentDate": "2026-01-12"},
			{"Id": "msg3", "Title": "Lunch", "SentDate": "2026-01-14"}
		]
	}`
}

func TestMessagesCoordinator_Refresh_FiresExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-09-01", r.URL.Query().Get("from"))
		_, _ = w.Write([]byte(komensPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMessagesCoordinator(messagesTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	cm := c.Data().Children[key]
	require.NotNil(t, cm)
	require.Len(t, cm.Messages, 3)

	// Descending by date; the id-less message diffs on its composed
	// title|date identity.
	assert.Equal(t, "msg3", cm.Messages[0].ID)
	assert.Equal(t, "No id here|2026-01-12", cm.Messages[1].ID)
	assert.Equal(t, "msg1", cm.Messages[2].ID)
	for _, m := range cm.Messages {
		assert.True(t, m.IsNew)
	}
	assert.Len(t, bus.byType(shared.EventMessageNew), 3)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Len(t, bus.byType(shared.EventMessageNew), 3, "no re-announcements")
}

func TestMessagesCoordinator_Select(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(komensPayload()))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	c := NewMessagesCoordinator(messagesTestConfig(bus), newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	selected, err := c.Select(key, 2)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "msg3", selected[0].ID)

	_, err = c.Select(children.Key("other|u9"), 1)
	assert.ErrorIs(t, err, shared.ErrUnknownChildKey)
}

func TestNoticeboardCoordinator_Refresh_FiresExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/komens/messages/noticeboard", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"Messages": [
				{"Id": "n1", "Title": "School closed", "SentDate": "2026-01-12"}
			]
		}`))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	config := DefaultConfig(0)
	config.Seen = memory.NewSeenStore()
	config.Bus = bus
	config.Clock = testClock
	c := NewNoticeboardCoordinator(config, newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	cn := c.Data().Children[key]
	require.NotNil(t, cn)
	require.Len(t, cn.Notices, 1)
	assert.True(t, cn.Notices[0].IsNew)
	assert.Len(t, bus.byType(shared.EventNoticeboardNew), 1)

	require.NoError(t, c.Refresh(context.Background()))
	assert.False(t, c.Data().Children[key].Notices[0].IsNew)
	assert.Len(t, bus.byType(shared.EventNoticeboardNew), 1)
}

func TestTimetableCoordinator_Refresh_NoNoveltyEvents(t *testing.T) {
	var actualCalls, permanentCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/timetable/actual":
			actualCalls.Add(1)
			assert.NotEmpty(t, r.URL.Query().Get("date"))
		case "/api/3/timetable/permanent":
			permanentCalls.Add(1)
		}
		_, _ = w.Write([]byte(`{
			"Days": [
				{"Date": "2026-01-12", "DayOfWeek": 1, "Atoms": [
					{"HourId": 1, "SubjectId": "MAT01"}
				]}
			],
			"Hours": [{"Id": 1, "BeginTime": "8:00", "EndTime": "8:45"}],
			"Subjects": [{"Id": "MAT01", "Abbrev": "MA", "Name": "Mathematics"}]
		}`))
	}))
	defer srv.Close()

	bus := &capturingBus{}
	config := DefaultConfig(0)
	config.Bus = bus
	config.Clock = testClock
	c := NewTimetableCoordinator(config, newTestClients(t, srv.URL, bus))
	key := children.ComposeKey(srv.URL, "u1")

	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, int32(3), actualCalls.Load(), "current, next, and previous week")
	assert.Equal(t, int32(1), permanentCalls.Load())

	ct := c.Data().Children[key]
	require.NotNil(t, ct)
	assert.Equal(t, "2026-01-12", ct.Current.WeekStart)
	assert.True(t, ct.Permanent.Permanent)
	require.Len(t, ct.Current.Days, 1)
	assert.Equal(t, "Mathematics", ct.Current.Days[0].Lessons[0].Subject)

	assert.Empty(t, bus.byType(shared.EventMarkNew))
	assert.Empty(t, bus.byType(shared.EventMessageNew))
	assert.Len(t, bus.byType(shared.EventTimetableSynced), 1)

	week, err := c.Week(key, TimetablePermanent)
	require.NoError(t, err)
	assert.True(t, week.Permanent)
}
