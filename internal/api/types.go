package api

import "github.com/mattjoyce/wxgate/internal/audit"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// AppHealth is one application's entry in HealthzResponse.
type AppHealth struct {
	App      string `json:"app"`
	InFlight int    `json:"in_flight"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string      `json:"status"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Endpoints     int         `json:"endpoints"`
	InFlight      int         `json:"in_flight"`
	Apps          []AppHealth `json:"apps"`
	Subscribers   int         `json:"subscribers"`
	EventsDropped int64       `json:"events_dropped"`
}

// MessagesResponse is returned by GET /messages.
type MessagesResponse struct {
	Messages []audit.Record `json:"messages"`
}
