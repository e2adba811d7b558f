// Package dedup collapses repeated deliveries of one logical message onto a
// single handler execution.
//
// A Store keeps two tables keyed by dedup key: calls still in flight, and
// replies already produced (the completed cache). Handling for a key runs at
// most once at a time, and every delivery sharing that key observes the same
// outcome. Failures are never cached, so a later delivery may retry.
package dedup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mattjoyce/wxgate/internal/message"
)

// ReplyCache is the completed cache. Implementations must be safe for
// concurrent use and must not retain entries indefinitely.
type ReplyCache interface {
	Get(ctx context.Context, key string) (message.Encoded, bool, error)
	Put(ctx context.Context, key string, reply message.Encoded) error
}

// Admission is the outcome of TryBeginOrJoin.
type Admission int

const (
	// Began means the caller owns the call and must Complete it.
	Began Admission = iota
	// Joined means another delivery is handling the key; Wait on the call.
	Joined
	// Cached means a reply was completed before the caller got the lock. The
	// returned call is already resolved.
	Cached
)

func (a Admission) String() string {
	switch a {
	case Began:
		return "began"
	case Joined:
		return "joined"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

// Call is one handling operation shared by every delivery of its key.
type Call struct {
	done  chan struct{}
	reply message.Encoded
	err   error

	// completing is set under Store.mu once Complete has started.
	completing bool
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

func resolvedCall(reply message.Encoded) *Call {
	c := &Call{done: make(chan struct{}), reply: reply}
	close(c.done)
	return c
}

// Done is closed once the call is resolved.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call resolves and returns its outcome. If ctx ends
// first Wait returns ctx.Err(); the call itself carries on for other waiters.
func (c *Call) Wait(ctx context.Context) (message.Encoded, error) {
	select {
	case <-c.done:
		return c.reply, c.err
	case <-ctx.Done():
		return message.Encoded{}, ctx.Err()
	}
}

// Store coordinates in-flight calls over a ReplyCache.
type Store struct {
	cache  ReplyCache
	logger *slog.Logger

	mu          sync.Mutex
	inflight    map[string]*Call
	completions uint64 // successful and failed Completes so far
}

// NewStore returns a Store backed by cache. A nil logger uses slog.Default().
func NewStore(cache ReplyCache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cache:    cache,
		logger:   logger,
		inflight: make(map[string]*Call),
	}
}

// Lookup checks the completed cache. Cache errors count as a miss.
func (s *Store) Lookup(ctx context.Context, key string) (message.Encoded, bool) {
	reply, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("reply cache read failed", "key", key, "error", err)
		return message.Encoded{}, false
	}
	return reply, ok
}

// TryBeginOrJoin admits a delivery for key. The in-flight table is checked
// first, then the completed cache, and a new call is registered only if both
// miss. The cache is read without holding the lock; if any call completed
// while the read was in progress the cache is read again under the lock, so a
// reply stored by a concurrent Complete is never missed.
func (s *Store) TryBeginOrJoin(ctx context.Context, key string) (*Call, Admission) {
	s.mu.Lock()
	if c, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		return c, Joined
	}
	seq := s.completions
	s.mu.Unlock()

	reply, hit := s.Lookup(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.inflight[key]; ok {
		return c, Joined
	}
	if !hit && s.completions != seq {
		reply, hit = s.Lookup(ctx, key)
	}
	if hit {
		return resolvedCall(reply), Cached
	}

	c := newCall()
	s.inflight[key] = c
	return c, Began
}

// Complete resolves the call for key with reply or err. A successful reply is
// stored in the completed cache before the in-flight entry is removed, so
// deliveries arriving meanwhile still join the call. Calling Complete for a
// key with no call in flight, or a second time, does nothing.
func (s *Store) Complete(ctx context.Context, key string, reply message.Encoded, err error) {
	s.mu.Lock()
	c, ok := s.inflight[key]
	if !ok || c.completing {
		s.mu.Unlock()
		return
	}
	c.completing = true
	s.mu.Unlock()

	if err == nil {
		if perr := s.cache.Put(ctx, key, reply); perr != nil {
			s.logger.Warn("reply cache write failed", "key", key, "error", perr)
		}
	}

	s.mu.Lock()
	delete(s.inflight, key)
	s.completions++
	s.mu.Unlock()

	c.reply, c.err = reply, err
	close(c.done)
}

// InFlight returns the number of calls currently being handled.
func (s *Store) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
