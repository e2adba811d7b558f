package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/wxgate/internal/events"
)

const maxEventLog = 50

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	health   HealthState
	apps     map[string]*AppState
	sweeps   SweepState
	eventLog []events.Event
	lastID   int64

	heartbeat Heartbeat
	traffic   Traffic

	// UI state
	theme    Theme
	appTable table.Model

	// Communication
	hubEvents chan events.Event

	// Error display
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		apps:      make(map[string]*AppState),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		theme:     NewDefaultTheme(),
		appTable:  newAppTable(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.appTable, cmd = m.appTable.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.heartbeat.Tick()
		m.traffic.Advance()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}

		m.traffic.Observe(e)
		updateAppState(m.apps, e)
		updateSweepState(&m.sweeps, e)
		m.appTable.SetRows(appRows(m.apps))

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Endpoints = msg.Endpoints
		m.health.InFlight = msg.InFlight
		m.health.Subscribers = msg.Subscribers
		m.health.EventsDropped = msg.EventsDropped
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		applyHealth(m.apps, msg)
		m.appTable.SetRows(appRows(m.apps))

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel, so
		// only the subscription needs restarting.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to gateway..."
	}

	header := renderHeader(m.health, m.heartbeat, m.traffic, m.theme, m.width)
	apps := renderApps(m.appTable, m.theme, m.width)
	sweeps := renderSweeps(m.sweeps, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select application")

	parts := []string{header, apps, sweeps, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
