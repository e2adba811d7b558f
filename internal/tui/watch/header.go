package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks gateway health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Endpoints     int
	InFlight      int
	Subscribers   int
	EventsDropped int64
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, heartbeat Heartbeat, traffic Traffic, theme Theme, width int) string {
	innerWidth := width - 4

	// Status
	statusText := theme.StatusOK.Render("HEALTHY")
	statusIcon := "✅"
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
		statusIcon = "🔌"
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
		statusIcon = "⚠️"
	}

	// Uptime
	uptime := time.Duration(health.UptimeSeconds) * time.Second
	uptimeStr := formatDuration(uptime)

	lastMessage := "never"
	if at := traffic.LastMessage(); !at.IsZero() {
		lastMessage = fmt.Sprintf("%s ago", time.Since(at).Round(time.Second))
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" WXGATE WATCH %s", heartbeat.Render(theme, health.Connected))

	// Calculate padding between title and clock
	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	// Stats line
	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Endpoints: %d  In flight: %d  Watchers: %d  Dropped: %d",
		statusIcon, statusText,
		uptimeStr,
		health.Endpoints,
		health.InFlight,
		health.Subscribers,
		health.EventsDropped,
	)

	received, failed := traffic.Totals()
	activityLine := fmt.Sprintf(" %s  %d in / %d failed (30s)  Last message: %s",
		traffic.Render(theme),
		received, failed,
		lastMessage,
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
