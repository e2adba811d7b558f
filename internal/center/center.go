// Package center runs the callback pipeline for one application: decrypt,
// parse, dedup, dispatch, serialize, encrypt.
package center

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mattjoyce/wxgate/internal/dedup"
	"github.com/mattjoyce/wxgate/internal/fault"
	"github.com/mattjoyce/wxgate/internal/handler"
	"github.com/mattjoyce/wxgate/internal/message"
)

//go:generate mockgen -destination=mocks/mock_crypto.go -package=mocks github.com/mattjoyce/wxgate/internal/center Crypto,Observer

// Crypto authenticates and decrypts inbound callbacks and encrypts replies.
type Crypto interface {
	Decrypt(signature, timestamp, nonce string, body []byte) ([]byte, error)
	Encrypt(plain []byte, timestamp, nonce string) ([]byte, error)
}

// Source tells where a reply came from.
type Source string

const (
	// SourceNew: this call ran the handler.
	SourceNew Source = "new"
	// SourceExecuting: this call waited on a concurrent delivery's handling.
	SourceExecuting Source = "executing"
	// SourceCache: the reply came from the completed cache.
	SourceCache Source = "cache"
)

// Params are the signature parameters from the callback URL.
type Params struct {
	Signature string
	Timestamp string
	Nonce     string
}

// Result is a successfully answered callback.
type Result struct {
	Body    []byte          // bytes to write back, encrypted when required
	Source  Source          // where Reply came from
	Key     string          // dedup key
	Request message.Request // parsed request
	Reply   message.Encoded // serialized reply before encryption
}

// Center processes callbacks for one application. It is safe for concurrent
// use.
type Center struct {
	app       string
	crypto    Crypto
	store     *dedup.Store
	handler   handler.Handler
	observers []Observer
	logger    *slog.Logger
}

// New wires a Center. A nil logger uses slog.Default().
func New(app string, crypto Crypto, store *dedup.Store, h handler.Handler, logger *slog.Logger, observers ...Observer) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{
		app:       app,
		crypto:    crypto,
		store:     store,
		handler:   h,
		observers: observers,
		logger:    logger.With("app", app),
	}
}

// App returns the application name the Center serves.
func (c *Center) App() string { return c.app }

// InFlight returns the number of handler executions currently running.
func (c *Center) InFlight() int { return c.store.InFlight() }

// Process answers one callback delivery. Errors are fault kinds:
// DecryptionFailed, MalformedMessage, HandlerFailure or EncryptionFailed.
// A caller whose ctx ends while waiting on another delivery's handling gets
// ctx's error; the shared handling carries on.
func (c *Center) Process(ctx context.Context, p Params, body []byte) (*Result, error) {
	start := time.Now()

	plain, err := c.crypto.Decrypt(p.Signature, p.Timestamp, p.Nonce, body)
	if err != nil {
		err = fault.Wrap(err, fault.DecryptionFailed, "decrypt callback", map[string]string{"app": c.app})
		c.notifyFailure(ctx, Failure{App: c.app, Err: err})
		return nil, err
	}
	c.notifyRequest(ctx, plain)

	req, err := message.Parse(plain)
	if err != nil {
		c.notifyFailure(ctx, Failure{App: c.app, Raw: plain, Err: err})
		return nil, err
	}

	res := &Result{Key: message.DedupKey(req), Request: req}
	res.Reply, res.Source, err = c.reply(ctx, res.Key, req)
	if err != nil {
		c.notifyFailure(ctx, Failure{App: c.app, Key: res.Key, Request: req, Raw: plain, Err: err})
		return nil, err
	}

	res.Body, err = c.seal(res.Reply, p)
	if err != nil {
		c.notifyFailure(ctx, Failure{App: c.app, Key: res.Key, Request: req, Raw: plain, Err: err})
		return nil, err
	}

	c.notifyResponse(ctx, Exchange{
		App:      c.app,
		Key:      res.Key,
		Request:  req,
		Raw:      plain,
		Reply:    res.Reply.Text,
		Source:   res.Source,
		Duration: time.Since(start),
	})
	return res, nil
}

// reply finds or produces the serialized reply for key.
func (c *Center) reply(ctx context.Context, key string, req message.Request) (message.Encoded, Source, error) {
	if enc, ok := c.store.Lookup(ctx, key); ok {
		return enc, SourceCache, nil
	}

	call, adm := c.store.TryBeginOrJoin(ctx, key)
	switch adm {
	case dedup.Began:
		enc, err := c.handle(ctx, key, req)
		return enc, SourceNew, err
	case dedup.Cached:
		enc, err := call.Wait(ctx)
		return enc, SourceCache, err
	default:
		c.logger.Debug("joining in-flight handling", "key", key)
		enc, err := call.Wait(ctx)
		if err != nil && !fault.Is(err, fault.HandlerFailure) {
			err = fmt.Errorf("await in-flight %s: %w", key, err)
		}
		return enc, SourceExecuting, err
	}
}

// handle runs the handler for a key this call began. The store is completed on
// every path, panics included. Handling is detached from ctx's cancellation
// so a dropped connection does not abort work other deliveries wait on.
func (c *Center) handle(ctx context.Context, key string, req message.Request) (reply message.Encoded, err error) {
	hctx := context.WithoutCancel(ctx)
	params := map[string]string{"app": c.app, "key": key, "kind": string(req.Kind())}

	defer func() { c.store.Complete(hctx, key, reply, err) }()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", "key", key, "panic", r, "stack", string(debug.Stack()))
			reply = message.Encoded{}
			err = fault.New(fault.HandlerFailure, fmt.Sprintf("handler panic: %v", r), params)
		}
	}()

	resp, err := handler.Dispatch(hctx, c.handler, req)
	if err != nil {
		return message.Encoded{}, fault.Wrap(err, fault.HandlerFailure, "handle "+string(req.Kind()), params)
	}
	reply, err = message.Serialize(resp)
	if err != nil {
		return message.Encoded{}, fault.Wrap(err, fault.HandlerFailure, "serialize reply", params)
	}
	return reply, nil
}

// seal encrypts reply when it requires it. Sentinels pass through untouched.
func (c *Center) seal(reply message.Encoded, p Params) ([]byte, error) {
	if !reply.Encrypt {
		return []byte(reply.Text), nil
	}
	out, err := c.crypto.Encrypt([]byte(reply.Text), p.Timestamp, p.Nonce)
	if err != nil {
		return nil, fault.Wrap(err, fault.EncryptionFailed, "encrypt reply", map[string]string{"app": c.app})
	}
	return out, nil
}
