package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/wxgate/internal/events"
)

const (
	defaultKeepAlive = 15 * time.Second
	// reconnectDelay is the retry hint sent to clients, in milliseconds.
	reconnectDelay = 2000
)

// eventFilter narrows the stream to one application and to event types by
// prefix ("message." selects every message event). Events that carry no app,
// such as janitor sweeps, pass the app filter.
type eventFilter struct {
	app   string
	types []string
}

func parseEventFilter(r *http.Request) eventFilter {
	q := r.URL.Query()
	f := eventFilter{app: strings.TrimSpace(q.Get("app"))}
	for _, t := range strings.Split(q.Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.types = append(f.types, t)
		}
	}
	return f
}

func (f eventFilter) match(ev events.Event) bool {
	if len(f.types) > 0 {
		ok := false
		for _, t := range f.types {
			if strings.HasPrefix(ev.Type, t) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.app == "" {
		return true
	}
	var payload struct {
		App string `json:"app"`
	}
	if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.App == "" {
		return true
	}
	return payload.App == f.app
}

// handleEvents streams hub events as SSE. Buffered events newer than
// Last-Event-ID are replayed before live ones; ?app= and ?type= filter both.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	filter := parseEventFilter(r)

	// Subscribe before the snapshot so nothing published in between is lost;
	// lastID drops the overlap.
	ch, cancel := s.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", reconnectDelay); err != nil {
		return
	}

	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))
	send := func(ev events.Event) bool {
		if ev.ID <= lastID {
			return true
		}
		lastID = ev.ID
		if !filter.match(ev) {
			return true
		}
		return writeSSE(w, ev) == nil
	}

	for _, ev := range s.events.SnapshotSince(lastID) {
		if !send(ev) {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !send(ev) {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeSSE writes one frame. Multi-line payloads get one data line each.
func writeSSE(w io.Writer, ev events.Event) error {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	for _, line := range strings.Split(string(ev.Data), "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
