package audit

import (
	"context"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/events"
)

var _ center.Observer = (*HubObserver)(nil)

// Received is the payload of a message.received event. The body itself is
// not published.
type Received struct {
	App      string `json:"app"`
	Bytes    int    `json:"bytes"`
	BodyHash string `json:"body_hash,omitempty"`
}

// HubObserver publishes callback activity to an events.Hub.
type HubObserver struct {
	hub *events.Hub
}

func NewHubObserver(hub *events.Hub) *HubObserver {
	return &HubObserver{hub: hub}
}

func (o *HubObserver) OnRequest(_ context.Context, app string, raw []byte) {
	o.hub.Publish(events.TypeReceived, Received{App: app, Bytes: len(raw), BodyHash: Fingerprint(raw)})
}

func (o *HubObserver) OnResponse(_ context.Context, ex center.Exchange) {
	o.hub.Publish(events.TypeReplied, FromExchange(ex))
}

func (o *HubObserver) OnFailure(_ context.Context, f center.Failure) {
	o.hub.Publish(events.TypeFailed, FromFailure(f))
}
