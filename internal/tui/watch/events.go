package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/wxgate/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeReplied:
		typeStyle = theme.StatusOK
	case events.TypeFailed:
		typeStyle = theme.StatusFailed
	case events.TypeReceived:
		typeStyle = theme.StatusRunning
	case events.TypeSweep:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-20s", e.Type))

	// Extract brief description from data
	desc := extractEventDesc(e)

	return fmt.Sprintf("%s %s %s", ts, typeName, desc)
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if app, ok := data["app"].(string); ok {
		parts = append(parts, fmt.Sprintf("[%s]", app))
	}

	if kind, ok := data["kind"].(string); ok {
		if ev, ok := data["event"].(string); ok && ev != "" {
			kind += "/" + ev
		}
		parts = append(parts, kind)
	}

	if user, ok := data["from_user"].(string); ok && user != "" {
		parts = append(parts, user)
	}

	if source, ok := data["source"].(string); ok && source != "" {
		parts = append(parts, "("+source+")")
	}

	if errKind, ok := data["error_kind"].(string); ok && errKind != "" {
		parts = append(parts, errKind)
	}

	if n, ok := data["bytes"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%dB", int(n)))
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
