package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/wxgate/internal/events"
)

// SweepState remembers the most recent janitor pass.
type SweepState struct {
	Count   int
	LastAt  time.Time
	Deleted map[string]int64
	Errors  map[string]string
}

type sweepData struct {
	At      time.Time         `json:"at"`
	Deleted map[string]int64  `json:"deleted"`
	Errors  map[string]string `json:"errors"`
}

func updateSweepState(s *SweepState, e events.Event) {
	if e.Type != events.TypeSweep {
		return
	}
	var data sweepData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return
	}
	s.Count++
	s.LastAt = data.At
	if s.LastAt.IsZero() {
		s.LastAt = e.At
	}
	s.Deleted = data.Deleted
	s.Errors = data.Errors
}

func renderSweeps(s SweepState, theme Theme, width int) string {
	var line string
	if s.Count == 0 {
		line = theme.Dim.Render("  No sweeps yet")
	} else {
		line = fmt.Sprintf("  #%d at %s  %s", s.Count, s.LastAt.Local().Format("15:04:05"), formatCounts(s.Deleted))
		if len(s.Errors) > 0 {
			names := make([]string, 0, len(s.Errors))
			for name := range s.Errors {
				names = append(names, name)
			}
			sort.Strings(names)
			line += "  " + theme.StatusFailed.Render("errors: "+strings.Join(names, ","))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("JANITOR"),
		line,
	)
	return theme.Border.Width(width - 4).Render(content)
}

// formatCounts renders deleted row counts as "name=n" pairs sorted by name.
func formatCounts(m map[string]int64) string {
	if len(m) == 0 {
		return "nothing pruned"
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, m[name]))
	}
	return strings.Join(parts, " ")
}
