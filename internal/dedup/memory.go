package dedup

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mattjoyce/wxgate/internal/message"
)

// MemoryCache is an in-process completed cache bounded by size and age.
type MemoryCache struct {
	lru *expirable.LRU[string, message.Encoded]
}

// NewMemoryCache holds at most size replies, each for at most ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, message.Encoded](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (message.Encoded, bool, error) {
	reply, ok := c.lru.Get(key)
	return reply, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, reply message.Encoded) error {
	c.lru.Add(key, reply)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int { return c.lru.Len() }
