// Package querycache provides a keyed query cache with prefix invalidation.
//
// Values are written only by the fetch path. Everyone else signals staleness
// through Invalidate, and dependents learn about it through Subscribe.
package querycache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Key identifies a query. Keys are hierarchical: {"subscriptions", "list"}
// lives under the prefix {"subscriptions"}.
type Key []string

// keySep never appears in app scopes or query names.
const keySep = "\x1f"

// String returns the printable form of the key.
func (k Key) String() string {
	return strings.Join(k, "/")
}

func (k Key) id() string {
	return strings.Join(k, keySep)
}

// HasPrefix reports whether prefix is a leading part of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Config contains cache timing configuration.
type Config struct {
	// StaleTime is how long a fetched value is served without refetching.
	StaleTime time.Duration
	// GCTime is how long an unused value is retained for Peek.
	GCTime time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		StaleTime: 30 * time.Second,
		GCTime:    10 * time.Minute,
	}
}

type entry struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

type listener struct {
	prefix Key
	fn     func(Key)
}

// Cache is a query cache safe for concurrent use.
type Cache struct {
	config Config
	store  *gocache.Cache
	group  singleflight.Group
	now    func() time.Time

	mu         sync.Mutex
	inflight   map[string]int
	generation map[string]uint64
	listeners  map[string]listener
}

// New creates a new query cache.
func New(config Config) *Cache {
	if config.GCTime <= 0 {
		config.GCTime = DefaultConfig().GCTime
	}
	return &Cache{
		config:     config,
		store:      gocache.New(config.GCTime, config.GCTime),
		now:        time.Now,
		inflight:   make(map[string]int),
		generation: make(map[string]uint64),
		listeners:  make(map[string]listener),
	}
}

// Fetch returns the fresh cached value for key or runs fn to load it.
// Concurrent callers for the same key share a single fn call. A result whose
// key was invalidated while fn was running is returned but not stored.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	k := key.id()

	if e, ok := c.lookup(k); ok && !e.stale && c.now().Sub(e.fetchedAt) < c.config.StaleTime {
		if v, ok := e.value.(T); ok {
			recordHit(key)
			return v, nil
		}
	}

	recordMiss(key)
	v, err, _ := c.group.Do(k, func() (any, error) {
		gen := c.begin(k)
		defer c.end(k)

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.save(k, gen, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// Peek returns the last fetched value for key, stale or not, without fetching.
func Peek[T any](c *Cache, key Key) (T, bool) {
	var zero T
	e, ok := c.lookup(key.id())
	if !ok {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// FetchedAt returns when the value held for key was stored. Invalidation
// does not change it.
func (c *Cache) FetchedAt(key Key) (time.Time, bool) {
	e, ok := c.lookup(key.id())
	if !ok {
		return time.Time{}, false
	}
	return e.fetchedAt, true
}

// Loading reports whether a fetch for key is outstanding.
func (c *Cache) Loading(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key.id()] > 0
}

// Invalidate marks every entry under prefix stale and notifies listeners
// whose prefix overlaps it. Returns the number of entries marked.
//
// Generations of in-flight fetches are bumped in the same critical section
// that marks entries stale, so a fetch racing with Invalidate can never
// store its result as fresh.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	for k := range c.inflight {
		if splitKey(k).HasPrefix(prefix) {
			c.generation[k]++
			c.group.Forget(k)
		}
	}

	marked := 0
	for k, item := range c.store.Items() {
		if !splitKey(k).HasPrefix(prefix) {
			continue
		}
		e, ok := item.Object.(entry)
		if !ok || e.stale {
			continue
		}
		e.stale = true
		c.store.Set(k, e, gocache.DefaultExpiration)
		marked++
	}

	targets := make([]func(Key), 0, len(c.listeners))
	for _, l := range c.listeners {
		if l.prefix.HasPrefix(prefix) || prefix.HasPrefix(l.prefix) {
			targets = append(targets, l.fn)
		}
	}
	c.mu.Unlock()

	recordInvalidation(prefix)
	slog.Debug("query cache invalidated", "prefix", prefix.String(), "entries", marked)

	for _, fn := range targets {
		fn(prefix)
	}
	return marked
}

// Subscribe registers fn to be called after every invalidation overlapping
// prefix. The returned func removes the registration.
func (c *Cache) Subscribe(prefix Key, fn func(Key)) func() {
	id := uuid.New().String()

	c.mu.Lock()
	c.listeners[id] = listener{prefix: prefix, fn: fn}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) lookup(k string) (entry, bool) {
	item, ok := c.store.Get(k)
	if !ok {
		return entry{}, false
	}
	e, ok := item.(entry)
	return e, ok
}

func (c *Cache) begin(k string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[k]++
	return c.generation[k]
}

func (c *Cache) end(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[k]--
	if c.inflight[k] <= 0 {
		delete(c.inflight, k)
	}
}

// save writes value unless the key was invalidated since gen was taken.
func (c *Cache) save(k string, gen uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation[k] != gen {
		slog.Debug("discarding result of invalidated fetch", "key", k)
		return
	}
	c.store.Set(k, entry{value: value, fetchedAt: c.now()}, gocache.DefaultExpiration)
}

func splitKey(k string) Key {
	return Key(strings.Split(k, keySep))
}
