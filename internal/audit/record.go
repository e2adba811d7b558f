// Package audit records what the callback pipeline did: structured logs, hub
// events for the admin stream, rows in the SQLite message log and envelopes
// on an AMQP topic exchange. Every recorder is a center.Observer.
package audit

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/fault"
	"github.com/mattjoyce/wxgate/internal/message"
)

// Record statuses.
const (
	StatusReplied = "replied"
	StatusFailed  = "failed"
)

var now = time.Now

// Record is the flat description of one answered or failed callback shared by
// every recorder.
type Record struct {
	ID         string    `json:"id"`
	App        string    `json:"app"`
	Key        string    `json:"key,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Event      string    `json:"event,omitempty"`
	FromUser   string    `json:"from_user,omitempty"`
	Source     string    `json:"source,omitempty"`
	Status     string    `json:"status"`
	BodyHash   string    `json:"body_hash,omitempty"`
	Reply      string    `json:"reply,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newRecord(app, status string, req message.Request, raw []byte) Record {
	r := Record{
		ID:        uuid.NewString(),
		App:       app,
		Status:    status,
		BodyHash:  Fingerprint(raw),
		CreatedAt: now().UTC(),
	}
	if req != nil {
		r.Kind = string(req.Kind())
		r.FromUser = req.Head().FromUser
		if ev, ok := req.(message.Event); ok {
			r.Event = string(ev.EventKind())
		}
	}
	return r
}

// FromExchange describes an answered callback.
func FromExchange(ex center.Exchange) Record {
	r := newRecord(ex.App, StatusReplied, ex.Request, ex.Raw)
	r.Key = ex.Key
	r.Source = string(ex.Source)
	r.Reply = ex.Reply
	r.DurationMS = ex.Duration.Milliseconds()
	return r
}

// FromFailure describes a failed callback.
func FromFailure(f center.Failure) Record {
	r := newRecord(f.App, StatusFailed, f.Request, f.Raw)
	r.Key = f.Key
	if f.Err != nil {
		r.Error = f.Err.Error()
		r.ErrorKind = string(fault.KindOf(f.Err))
	}
	return r
}

// Fingerprint is the hex BLAKE3-256 of a decrypted body, or "" for none.
func Fingerprint(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
