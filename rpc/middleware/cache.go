// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/dispatch/rpc"
)

// DefaultCacheSize is the number of results kept when CacheConfig.Size is
// zero.
const DefaultCacheSize = 1024

// CacheConfig holds the configuration of a Cache.
type CacheConfig struct {
	// TTL is how long a result is served from the cache.
	TTL time.Duration

	// Size bounds the number of results kept. The least recently used
	// result is evicted first.
	Size int

	// Clock expires entries. Defaults to the wall clock.
	Clock clock.Clock
}

// Validate ensures the configuration is usable.
func (c CacheConfig) Validate() error {
	if c.TTL <= 0 {
		return errors.NotValidf("cache ttl %v", c.TTL)
	}
	if c.Size < 0 {
		return errors.NotValidf("cache size %d", c.Size)
	}
	return nil
}

// Cache memoises successful query results by path and input. Mutations
// and subscriptions are never cached, and neither are errors. Results are
// kept in their JSON form and every hit gets its own decoded copy, so
// callers may modify what they are given.
type Cache struct {
	ttl     time.Duration
	clock   clock.Clock
	entries *lru.Cache
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// NewCache returns an empty cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	entries, err := lru.New(cfg.Size)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Cache{
		ttl:     cfg.TTL,
		clock:   cfg.Clock,
		entries: entries,
	}, nil
}

// Middleware returns the middleware serving from c.
func (c *Cache) Middleware() rpc.Middleware {
	return func(ctx context.Context, req rpc.Request, next rpc.Next) (any, error) {
		if req.Type != rpc.TypeQuery {
			return next(ctx, req)
		}
		key, ok := cacheKey(req)
		if !ok {
			return next(ctx, req)
		}

		now := c.clock.Now()
		if v, ok := c.entries.Get(key); ok {
			entry := v.(cacheEntry)
			if now.Before(entry.expires) {
				var out any
				if err := json.Unmarshal(entry.data, &out); err == nil {
					return out, nil
				}
			}
			c.entries.Remove(key)
		}

		out, err := next(ctx, req)
		if err != nil {
			return out, err
		}
		if data, err := json.Marshal(out); err == nil {
			c.entries.Add(key, cacheEntry{data: data, expires: now.Add(c.ttl)})
		}
		return out, nil
	}
}

// Invalidate drops every cached result of path.
func (c *Cache) Invalidate(path string) {
	prefix := path + "\x00"
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k.(string), prefix) {
			c.entries.Remove(k)
		}
	}
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached results, including expired ones not
// yet looked up again.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// cacheKey identifies a call by path and the JSON form of its input.
// Inputs that cannot be marshalled are not cached.
func cacheKey(req rpc.Request) (string, bool) {
	data, err := json.Marshal(req.Input)
	if err != nil {
		return "", false
	}
	return req.Path + "\x00" + string(data), true
}
