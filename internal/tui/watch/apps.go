package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/wxgate/internal/events"
)

// AppState is the running tally for one application, built from events and
// the in-flight gauge from /healthz.
type AppState struct {
	Name      string
	Received  int
	Replied   int
	Failed    int
	Cached    int // replies served from the cache or a concurrent delivery
	InFlight  int
	LastKind  string
	LastUser  string
	LastError string
	LastSeen  time.Time
}

// eventData is the union of the payloads published for message.* events.
type eventData struct {
	App       string `json:"app"`
	Kind      string `json:"kind"`
	Event     string `json:"event"`
	FromUser  string `json:"from_user"`
	Source    string `json:"source"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// updateAppState folds one message.* event into apps. Other events are
// ignored.
func updateAppState(apps map[string]*AppState, e events.Event) {
	switch e.Type {
	case events.TypeReceived, events.TypeReplied, events.TypeFailed:
	default:
		return
	}

	var data eventData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.App == "" {
		return
	}

	st, ok := apps[data.App]
	if !ok {
		st = &AppState{Name: data.App}
		apps[data.App] = st
	}
	st.LastSeen = e.At

	switch e.Type {
	case events.TypeReceived:
		st.Received++
	case events.TypeReplied:
		st.Replied++
		if data.Source == "cache" || data.Source == "executing" {
			st.Cached++
		}
		st.LastKind = kindLabel(data.Kind, data.Event)
		st.LastUser = data.FromUser
	case events.TypeFailed:
		st.Failed++
		if data.Kind != "" {
			st.LastKind = kindLabel(data.Kind, data.Event)
		}
		st.LastError = data.ErrorKind
		if st.LastError == "" {
			st.LastError = data.Error
		}
	}
}

// applyHealth copies the per-app in-flight gauge, creating rows for apps that
// have not produced events yet.
func applyHealth(apps map[string]*AppState, h healthMsg) {
	for _, st := range apps {
		st.InFlight = 0
	}
	for _, a := range h.Apps {
		st, ok := apps[a.App]
		if !ok {
			st = &AppState{Name: a.App}
			apps[a.App] = st
		}
		st.InFlight = a.InFlight
	}
}

func kindLabel(kind, event string) string {
	if event != "" {
		return kind + "/" + event
	}
	return kind
}

func newAppTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "App", Width: 14},
			{Title: "Recv", Width: 6},
			{Title: "Replied", Width: 8},
			{Title: "Cached", Width: 7},
			{Title: "Failed", Width: 7},
			{Title: "Busy", Width: 5},
			{Title: "Last", Width: 24},
			{Title: "Error", Width: 20},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// appRows renders apps sorted by name.
func appRows(apps map[string]*AppState) []table.Row {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		st := apps[name]
		rows = append(rows, table.Row{
			st.Name,
			fmt.Sprint(st.Received),
			fmt.Sprint(st.Replied),
			fmt.Sprint(st.Cached),
			fmt.Sprint(st.Failed),
			fmt.Sprint(st.InFlight),
			st.LastKind,
			st.LastError,
		})
	}
	return rows
}

func renderApps(t table.Model, theme Theme, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("APPLICATIONS"),
		t.View(),
	)
	return theme.Border.Width(width - 4).Render(content)
}
