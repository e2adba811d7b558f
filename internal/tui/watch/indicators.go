package watch

import (
	"strings"
	"time"

	"github.com/mattjoyce/wxgate/internal/events"
)

// Heartbeat alternates on every UI tick while the event stream is up and
// freezes on a hollow frame while it is down.
type Heartbeat struct {
	beat bool
}

func (h *Heartbeat) Tick() {
	h.beat = !h.beat
}

func (h Heartbeat) Render(theme Theme, connected bool) string {
	if !connected {
		return theme.TickerInactive.Render("♡")
	}
	if h.beat {
		return theme.TickerActive.Render("♥")
	}
	return theme.TickerActive.Render("♡")
}

const trafficSlots = 30

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

type trafficSlot struct {
	received int
	failed   int
}

// Traffic is a rolling per-second histogram of inbound callbacks. Slots
// that saw a failed reply are drawn in the failure colour.
type Traffic struct {
	slots       [trafficSlots]trafficSlot
	head        int
	lastMessage time.Time
}

// Observe counts a message event into the current slot. Other event
// types are ignored.
func (t *Traffic) Observe(e events.Event) {
	switch e.Type {
	case events.TypeReceived:
		t.slots[t.head].received++
	case events.TypeFailed:
		t.slots[t.head].failed++
	default:
		return
	}
	t.lastMessage = e.At
}

// Advance opens a fresh slot, dropping the oldest one.
func (t *Traffic) Advance() {
	t.head = (t.head + 1) % trafficSlots
	t.slots[t.head] = trafficSlot{}
}

// Totals sums the window.
func (t Traffic) Totals() (received, failed int) {
	for _, s := range t.slots {
		received += s.received
		failed += s.failed
	}
	return received, failed
}

func (t Traffic) LastMessage() time.Time {
	return t.lastMessage
}

// Render draws the window oldest first, scaled to the busiest slot.
func (t Traffic) Render(theme Theme) string {
	peak := 0
	for _, s := range t.slots {
		peak = max(peak, s.received)
	}

	var b strings.Builder
	for i := 1; i <= trafficSlots; i++ {
		s := t.slots[(t.head+i)%trafficSlots]
		if s.received == 0 && s.failed == 0 {
			b.WriteString(theme.TickerInactive.Render(string(sparkLevels[0])))
			continue
		}
		level := 0
		if peak > 0 {
			level = s.received * (len(sparkLevels) - 1) / peak
		}
		bar := string(sparkLevels[level])
		if s.failed > 0 {
			b.WriteString(theme.StatusFailed.Render(bar))
		} else {
			b.WriteString(theme.TickerActive.Render(bar))
		}
	}
	return b.String()
}
