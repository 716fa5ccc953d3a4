/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"reflect"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCacheTTL is how long a cached listing is served before reloading.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	value   any
	expires time.Time
}

// Cache is a concurrency-safe TTL store shared by cached repositories.
// Entries are never invalidated by writes; they expire after the TTL or
// when evicted explicitly.
type Cache struct {
	entries *xsync.MapOf[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

// NewCache returns a cache whose entries live for ttl, or DefaultCacheTTL
// when ttl is not positive.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: xsync.NewMapOf[string, cacheEntry](),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	now := c.now()
	if now.Before(e.expires) {
		return e.value, true
	}
	// Drop the entry only while it is still expired; a concurrent Set wins.
	e, ok = c.entries.Compute(key, func(cur cacheEntry, loaded bool) (cacheEntry, bool) {
		return cur, !loaded || !now.Before(cur.expires)
	})
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value any) {
	c.entries.Store(key, cacheEntry{value: value, expires: c.now().Add(c.ttl)})
}

func (c *Cache) Evict(key string) {
	c.entries.Delete(key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.entries.Range(func(key string, _ cacheEntry) bool {
		c.entries.Delete(key)
		return true
	})
}

func (c *Cache) Len() int {
	return c.entries.Size()
}

// CacheKey returns the key under which listings of T are cached:
// the package path and type name of T followed by "_query".
func CacheKey[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return t.PkgPath() + "." + t.Name() + "_query"
}

// CachedRepository memoizes All for the cache TTL and delegates everything
// else to the wrapped repository. Writes through this repository do not
// evict the cached listing, so All may return stale rows until the entry
// expires or is evicted.
type CachedRepository[T any] struct {
	Repository[T]
	cache *Cache
	key   string
}

func NewCachedRepository[T any](inner Repository[T], cache *Cache) *CachedRepository[T] {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &CachedRepository[T]{Repository: inner, cache: cache, key: CacheKey[T]()}
}

// All returns the cached listing of T, loading and caching it on a miss.
// The listing is fully materialized before it is cached, and every call
// returns its own copies of the entities.
func (r *CachedRepository[T]) All(ctx context.Context) ([]*T, error) {
	if v, ok := r.cache.Get(r.key); ok {
		if items, ok := v.([]*T); ok {
			return clone(items), nil
		}
	}
	items, err := r.Repository.All(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Set(r.key, clone(items))
	return items, nil
}

// Evict drops the cached listing of T.
func (r *CachedRepository[T]) Evict() {
	r.cache.Evict(r.key)
}

// clone copies the entities shallowly. Pointer fields are shared, which is
// safe as long as they are replaced rather than written through.
func clone[T any](items []*T) []*T {
	out := make([]*T, len(items))
	for i, p := range items {
		if p == nil {
			continue
		}
		v := *p
		out[i] = &v
	}
	return out
}
