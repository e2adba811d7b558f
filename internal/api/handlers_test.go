package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/wxgate/internal/audit"
	"github.com/mattjoyce/wxgate/internal/events"
)

const testKey = "secret-key"

type fakeApp struct {
	name     string
	inFlight int
}

func (a fakeApp) App() string   { return a.name }
func (a fakeApp) InFlight() int { return a.inFlight }

type fakeReader struct {
	records  []audit.Record
	err      error
	gotApp   string
	gotLimit int
}

func (f *fakeReader) Recent(_ context.Context, app string, limit int) ([]audit.Record, error) {
	f.gotApp = app
	f.gotLimit = limit
	return f.records, f.err
}

func newTestServer(t *testing.T, hub *events.Hub, reader MessageReader) *Server {
	t.Helper()
	apps := []App{fakeApp{name: "main", inFlight: 2}, fakeApp{name: "shop"}}
	return New(Config{APIKey: testKey}, apps, hub, reader, nil)
}

func do(t *testing.T, h http.Handler, path string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	hub := events.NewHub(8)
	s := newTestServer(t, hub, nil)

	rec := do(t, s.Handler(), "/healthz", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Endpoints)
	assert.Equal(t, 2, resp.InFlight)
	assert.Equal(t, []AppHealth{{App: "main", InFlight: 2}, {App: "shop"}}, resp.Apps)
	assert.Zero(t, resp.Subscribers)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, events.NewHub(8), &fakeReader{})

	for _, path := range []string{"/events", "/messages"} {
		rec := do(t, s.Handler(), path, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid API key", resp.Error)
	}
}

func TestMessages(t *testing.T) {
	reader := &fakeReader{records: []audit.Record{{ID: "r1", App: "main", Key: "42", Status: audit.StatusReplied}}}
	s := newTestServer(t, events.NewHub(8), reader)

	rec := do(t, s.Handler(), "/messages?app=main&limit=5", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "main", reader.gotApp)
	assert.Equal(t, 5, reader.gotLimit)

	var resp MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "r1", resp.Messages[0].ID)
}

func TestMessagesEmptyIsArray(t *testing.T) {
	s := newTestServer(t, events.NewHub(8), &fakeReader{})

	rec := do(t, s.Handler(), "/messages", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestMessagesErrors(t *testing.T) {
	tests := []struct {
		name   string
		reader MessageReader
		path   string
		want   int
	}{
		{name: "disabled", reader: nil, path: "/messages", want: http.StatusServiceUnavailable},
		{name: "bad limit", reader: &fakeReader{}, path: "/messages?limit=abc", want: http.StatusBadRequest},
		{name: "negative limit", reader: &fakeReader{}, path: "/messages?limit=-1", want: http.StatusBadRequest},
		{name: "read failure", reader: &fakeReader{err: errors.New("db closed")}, path: "/messages", want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, events.NewHub(8), tt.reader)
			rec := do(t, s.Handler(), tt.path, true)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestEventsReplayAndStream(t *testing.T) {
	hub := events.NewHub(8)
	first := hub.Publish(events.TypeSweep, map[string]int{"deleted": 1})
	hub.Publish(events.TypeSweep, map[string]int{"deleted": 2})

	s := newTestServer(t, hub, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Last-Event-ID", "1")
	require.Equal(t, int64(1), first.ID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	assert.Equal(t, "retry: 2000\n", readFrame(t, br))
	frame := readFrame(t, br)
	assert.Contains(t, frame, "id: 2\n")
	assert.Contains(t, frame, "event: "+events.TypeSweep+"\n")
	assert.Contains(t, frame, `data: {"deleted":2}`)

	// Wait for the handler to subscribe before publishing live.
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish("test.live", map[string]string{"ok": "yes"})

	frame = readFrame(t, br)
	assert.Contains(t, frame, "id: 3\n")
	assert.Contains(t, frame, "event: test.live\n")
}

func readFrame(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := br.ReadString('\n')
		if errors.Is(err, io.EOF) {
			t.Fatalf("stream closed mid-frame: %q", b.String())
		}
		require.NoError(t, err)
		if line == "\n" {
			return b.String()
		}
		b.WriteString(line)
	}
}

func TestEventsFilterByAppAndType(t *testing.T) {
	hub := events.NewHub(16)
	hub.Publish(events.TypeReceived, map[string]string{"app": "shop"})
	hub.Publish(events.TypeReplied, map[string]string{"app": "main", "key": "1"})
	hub.Publish(events.TypeSweep, map[string]int{"deleted": 3})
	hub.Publish(events.TypeFailed, map[string]string{"app": "main", "key": "2"})

	s := newTestServer(t, hub, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?app=main&type=message.", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	readFrame(t, br) // retry hint
	assert.Contains(t, readFrame(t, br), "id: 2\n")
	assert.Contains(t, readFrame(t, br), "id: 4\n")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(events.TypeReplied, map[string]string{"app": "shop"})
	hub.Publish(events.TypeReplied, map[string]string{"app": "main", "key": "3"})
	assert.Contains(t, readFrame(t, br), "id: 6\n")
}

func TestEventFilterMatch(t *testing.T) {
	ev := func(typ, data string) events.Event {
		return events.Event{Type: typ, Data: json.RawMessage(data)}
	}
	all := eventFilter{}
	assert.True(t, all.match(ev(events.TypeSweep, `{}`)))

	f := eventFilter{app: "main", types: []string{"message.", events.TypeSweep}}
	assert.True(t, f.match(ev(events.TypeReplied, `{"app":"main"}`)))
	assert.False(t, f.match(ev(events.TypeReplied, `{"app":"shop"}`)))
	assert.True(t, f.match(ev(events.TypeSweep, `{"deleted":{}}`)), "events without an app pass")
	assert.False(t, f.match(ev("other.thing", `{"app":"main"}`)))
}

func TestWriteSSESplitsMultilineData(t *testing.T) {
	var b strings.Builder
	require.NoError(t, writeSSE(&b, events.Event{ID: 9, Type: "x", Data: json.RawMessage("{\n\"a\": 1\n}")}))
	assert.Equal(t, "id: 9\nevent: x\ndata: {\ndata: \"a\": 1\ndata: }\n\n", b.String())
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(7), parseLastEventID(" 7 "))
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(12), parseLastEventID("12"))
}
