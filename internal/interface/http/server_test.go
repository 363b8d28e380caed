package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolbridge/skolbridge/internal/client"
	"github.com/skolbridge/skolbridge/internal/coordinator"
	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/infrastructure/messaging"
	"github.com/skolbridge/skolbridge/internal/infrastructure/metrics"
	"github.com/skolbridge/skolbridge/internal/infrastructure/persistence/memory"
	httpiface "github.com/skolbridge/skolbridge/internal/interface/http"
	"github.com/skolbridge/skolbridge/internal/service"
)

// fakeSchool serves just enough of the school API for the four
// coordinators to complete a cycle.
func fakeSchool() *httptest.Server {
	return httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/3/marks"):
			_, _ = w.Write([]byte(`{
				"Subjects": [
					{
						"Subject": {"Id": "MAT01", "Abbrev": "MA", "Name": "Mathematics"},
						"Marks": [
							{"Id": "m1", "MarkDate": "2026-01-10", "MarkText": "1", "Weight": 2},
							{"Id": "m2", "MarkDate": "2026-01-14", "MarkText": "2"}
						]
					}
				]
			}`))
		case strings.HasSuffix(r.URL.Path, "/komens/messages/received"):
			_, _ = w.Write([]byte(`{
				"Messages": [
					{"$id": "1", "Id": "msg1", "Title": "Excursion", "SentDate": "2026-01-12", "Sender": {"Name": "Teacher"}}
				]
			}`))
		case strings.HasSuffix(r.URL.Path, "/komens/messages/noticeboard"):
			_, _ = w.Write([]byte(`{
				"Messages": [
					{"$id": "1", "Id": "n1", "Title": "Canteen closed", "SentDate": "2026-01-13"}
				]
			}`))
		case strings.HasPrefix(r.URL.Path, "/api/3/timetable"):
			_, _ = w.Write([]byte(`{"Days": [], "Hours": [], "Subjects": [], "Teachers": [], "Rooms": [], "Groups": []}`))
		default:
			stdhttp.NotFound(w, r)
		}
	}))
}

type stack struct {
	handler stdhttp.Handler
	marks   *coordinator.MarksCoordinator
	key     children.Key
}

func newStack(t *testing.T, schoolURL string) *stack {
	t.Helper()

	rec := children.Record{
		UserID:       "u1",
		Username:     "parent1",
		Name:         "Jan",
		Surname:      "Novak",
		School:       "ZS Test",
		Server:       schoolURL,
		AccessToken:  "acc",
		RefreshToken: "ref",
	}
	repo := memory.NewOptionsRepository()
	repo.Seed(map[string]children.Record{"child_1": rec})

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = false
	bus := messaging.NewInMemoryEventBus(busConfig)
	t.Cleanup(func() { _ = bus.Close() })

	metricSet := metrics.New()
	require.NoError(t, bus.SubscribeAll(metricSet.ObserveEvent))

	pcConfig := client.DefaultPollContextConfig(repo, bus)
	pcConfig.RateLimiter.RequestsPerSecond = 1000
	pcConfig.RateLimiter.BurstSize = 1000
	pcConfig.RateLimiter.MinInterval = 0
	pc := client.NewPollContext(pcConfig)

	child, err := children.NewChild(rec)
	require.NoError(t, err)
	clients := []*client.AuthenticatedClient{client.NewAuthenticatedClient(pc, child, "child_1")}

	clock := func() time.Time {
		return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	}
	seen := memory.NewSeenStore()

	baseConfig := func(interval time.Duration) coordinator.Config {
		c := coordinator.DefaultConfig(interval)
		c.Seen = seen
		c.Bus = bus
		c.Clock = clock
		return c
	}

	marksConfig := coordinator.DefaultMarksConfig()
	marksConfig.Config = baseConfig(30 * time.Minute)
	marksCoord := coordinator.NewMarksCoordinator(marksConfig, clients)

	messagesConfig := coordinator.DefaultMessagesConfig()
	messagesConfig.Config = baseConfig(30 * time.Minute)
	messagesCoord := coordinator.NewMessagesCoordinator(messagesConfig, clients)

	noticeboardCoord := coordinator.NewNoticeboardCoordinator(baseConfig(time.Hour), clients)
	timetableCoord := coordinator.NewTimetableCoordinator(baseConfig(time.Hour), clients)

	actions := service.NewActions(marksCoord, messagesCoord, noticeboardCoord, timetableCoord, nil)

	server := httpiface.NewServer(httpiface.DefaultConfig(), httpiface.Dependencies{
		Marks:       marksCoord,
		Messages:    messagesCoord,
		Noticeboard: noticeboardCoord,
		Timetable:   timetableCoord,
		Actions:     actions,
		Metrics:     metricSet,
	})

	return &stack{
		handler: server.Handler(),
		marks:   marksCoord,
		key:     children.ComposeKey(schoolURL, "u1"),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, handler stdhttp.Handler, method, target string, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHealthEndpoint(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, env := doRequest(t, s.handler, "GET", "/health", "")
	assert.Equal(t, stdhttp.StatusOK, code)
	assert.True(t, env.Success)
}

func TestMarksRequiresChildKey(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, env := doRequest(t, s.handler, "GET", "/api/v1/marks", "")
	assert.Equal(t, stdhttp.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_request", env.Error.Code)
}

func TestMarksBeforeFirstCycle(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, env := doRequest(t, s.handler, "GET", "/api/v1/marks?child_key="+string(s.key), "")
	assert.Equal(t, stdhttp.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "no_snapshot", env.Error.Code)
}

func TestRefreshThenReadMarks(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, env := doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", `{"coordinator":"marks"}`)
	require.Equal(t, stdhttp.StatusOK, code)
	assert.True(t, env.Success)

	code, env = doRequest(t, s.handler, "GET", "/api/v1/marks?child_key="+string(s.key), "")
	require.Equal(t, stdhttp.StatusOK, code)

	var result []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result, 2)
}

func TestMarksLimit(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, _ := doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", `{"coordinator":"marks"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	code, env := doRequest(t, s.handler, "GET", "/api/v1/marks?child_key="+string(s.key)+"&limit=1", "")
	require.Equal(t, stdhttp.StatusOK, code)

	var result []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result, 1)
}

func TestUnknownChildKey(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, _ := doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", `{"coordinator":"marks"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	code, env := doRequest(t, s.handler, "GET", "/api/v1/marks?child_key=other|u9", "")
	assert.Equal(t, stdhttp.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unknown_child", env.Error.Code)
}

func TestMarkSeenActionValidation(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, env := doRequest(t, s.handler, "POST", "/api/v1/actions/mark-seen",
		`{"coordinator":"grades","child_key":"`+string(s.key)+`","record_id":"m1"}`)
	assert.Equal(t, stdhttp.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_request", env.Error.Code)
}

func TestMarkSeenActionAcknowledges(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, _ := doRequest(t, s.handler, "POST", "/api/v1/actions/mark-seen",
		`{"coordinator":"marks","child_key":"`+string(s.key)+`","record_id":"m1"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	// After the acknowledgement, the first cycle reports m1 as not new.
	code, _ = doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", `{"coordinator":"marks"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	snap := s.marks.Data()
	require.NotNil(t, snap)
	cm := snap.Children[s.key]
	require.NotNil(t, cm)
	for _, mark := range cm.Flat {
		if mark.ID == "m1" {
			assert.False(t, mark.IsNew)
		}
	}
}

func TestAcknowledgeSubjectAction(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, _ := doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", `{"coordinator":"marks"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	code, env := doRequest(t, s.handler, "POST", "/api/v1/actions/acknowledge-subject",
		`{"child_key":"`+string(s.key)+`","subject_key":"MAT01"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.EqualValues(t, 2, result["marks_signed"])
}

func TestTimetableWeekValidation(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, env := doRequest(t, s.handler, "GET", "/api/v1/timetable?child_key="+string(s.key)+"&week=someday", "")
	assert.Equal(t, stdhttp.StatusBadRequest, code)
	require.NotNil(t, env.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, _ := doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", "")
	require.Equal(t, stdhttp.StatusOK, code)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "skolbridge_sync_cycles_total")
	assert.Contains(t, body, `coordinator="marks"`)
}

func TestListChildren(t *testing.T) {
	school := fakeSchool()
	defer school.Close()
	s := newStack(t, school.URL)

	code, _ := doRequest(t, s.handler, "POST", "/api/v1/actions/refresh", `{"coordinator":"marks"}`)
	require.Equal(t, stdhttp.StatusOK, code)

	code, env := doRequest(t, s.handler, "GET", "/api/v1/children", "")
	require.Equal(t, stdhttp.StatusOK, code)

	var result []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result, 1)
	assert.Equal(t, string(s.key), result[0]["key"])
}
