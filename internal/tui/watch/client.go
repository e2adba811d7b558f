package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/wxgate/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type appHealth struct {
	App      string `json:"app"`
	InFlight int    `json:"in_flight"`
}

type healthMsg struct {
	Status        string      `json:"status"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Endpoints     int         `json:"endpoints"`
	InFlight      int         `json:"in_flight"`
	Apps          []appHealth `json:"apps"`
	Subscribers   int         `json:"subscribers"`
	EventsDropped int64       `json:"events_dropped"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents connects to /events and feeds frames into ch until the
// stream ends, then reports sseDisconnectedMsg. lastID resumes the stream
// after a reconnect.
func subscribeToEvents(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events: %s", resp.Status))
		}

		readSSE(resp.Body, ch)
		return sseDisconnectedMsg{}
	}
}

// readSSE parses SSE frames from r until EOF. Comment lines are skipped. A
// frame cut off by EOF is still delivered if it carried data.
func readSSE(r io.Reader, ch chan<- events.Event) {
	scanner := bufio.NewScanner(r)
	var current events.Event

	flush := func() {
		if len(current.Data) > 0 {
			current.At = time.Now()
			ch <- current
		}
		current = events.Event{}
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			flush()
			continue
		}

		switch {
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			current.Data = []byte(line[6:])
		}
	}
	flush()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
