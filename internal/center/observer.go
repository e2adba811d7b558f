package center

import (
	"context"
	"time"

	"github.com/mattjoyce/wxgate/internal/message"
)

// Observer is notified as callbacks move through a Center. Hooks run on the
// request path and must not block.
type Observer interface {
	// OnRequest receives the decrypted request body.
	OnRequest(ctx context.Context, app string, raw []byte)
	// OnResponse receives every answered callback.
	OnResponse(ctx context.Context, ex Exchange)
	// OnFailure receives every callback that ended in an error.
	OnFailure(ctx context.Context, f Failure)
}

// Exchange describes an answered callback.
type Exchange struct {
	App      string
	Key      string
	Request  message.Request
	Raw      []byte
	Reply    string // serialized reply before encryption
	Source   Source
	Duration time.Duration
}

// Failure describes a callback that failed. Key, Request and Raw are empty
// when the failure happened before they were known.
type Failure struct {
	App     string
	Key     string
	Request message.Request
	Raw     []byte
	Err     error
}

func (c *Center) notifyRequest(ctx context.Context, raw []byte) {
	for _, o := range c.observers {
		o.OnRequest(ctx, c.app, raw)
	}
}

func (c *Center) notifyResponse(ctx context.Context, ex Exchange) {
	for _, o := range c.observers {
		o.OnResponse(ctx, ex)
	}
}

func (c *Center) notifyFailure(ctx context.Context, f Failure) {
	for _, o := range c.observers {
		o.OnFailure(ctx, f)
	}
}
