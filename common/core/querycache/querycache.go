// Package querycache keeps query results keyed by their serialized parameters.
// Freshness and passive refresh are independent: StaleTime decides whether a read
// reaches the fetcher, RefreshInterval drives the background refresh of watched keys.
// Unwatched entries are dropped once they are older than GCTime.
package querycache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime       = 15 * time.Second
	DefaultRefreshInterval = 30 * time.Second
	DefaultGCTime          = 5 * time.Minute
)

type Fetcher[V any] func(ctx context.Context) (V, error)

type Config[V any] struct {
	StaleTime       time.Duration
	RefreshInterval time.Duration
	// never shorter than StaleTime
	GCTime time.Duration
	Now    func() time.Time
	// When set, a non-zero result replaces the write time as the entry's age,
	// so values that were already cached elsewhere keep their original age.
	UpdatedAt func(V) time.Time
}

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

type watcher[V any] struct {
	cancel      context.CancelFunc
	subscribers map[uint64]func(V, error)
}

type Cache[V any] struct {
	config Config[V]

	mu        sync.RWMutex
	entries   map[string]entry[V]
	watchers  map[string]*watcher[V]
	nextID    uint64
	lastSweep time.Time

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New[V any](config Config[V]) *Cache[V] {
	if config.StaleTime <= 0 {
		config.StaleTime = DefaultStaleTime
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.GCTime <= 0 {
		config.GCTime = DefaultGCTime
	}
	if config.GCTime < config.StaleTime {
		config.GCTime = config.StaleTime
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Cache[V]{
		config:    config,
		entries:   map[string]entry[V]{},
		watchers:  map[string]*watcher[V]{},
		lastSweep: config.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Get returns the cached value while it is fresh and calls fetch otherwise.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	if value, ok := c.fresh(key); ok {
		return value, nil
	}

	return c.Fetch(ctx, key, fetch)
}

// Fetch always calls fetch. Concurrent fetches of one key share a single call.
func (c *Cache[V]) Fetch(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	result, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.store(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	return result.(V), nil
}

func (c *Cache[V]) store(key string, value V) {
	now := c.config.Now()
	updatedAt := now
	if c.config.UpdatedAt != nil {
		if at := c.config.UpdatedAt(value); !at.IsZero() {
			updatedAt = at
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, updatedAt: updatedAt}
	if now.Sub(c.lastSweep) >= c.config.StaleTime {
		c.sweepLocked(now)
	}
}

// sweepLocked drops unwatched entries older than GCTime.
func (c *Cache[V]) sweepLocked(now time.Time) {
	c.lastSweep = now
	for key, cached := range c.entries {
		if _, watched := c.watchers[key]; watched {
			continue
		}
		if now.Sub(cached.updatedAt) >= c.config.GCTime {
			delete(c.entries, key)
		}
	}
}

// Peek returns the cached value, fresh or not, without fetching.
func (c *Cache[V]) Peek(key string) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.entries[key]
	return cached.value, cached.updatedAt, ok
}

func (c *Cache[V]) IsFresh(key string) bool {
	_, ok := c.fresh(key)
	return ok
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Watch subscribes onUpdate to the refresh of key, which runs every
// RefreshInterval while at least one subscriber remains. The returned func
// removes this subscription only and may be called more than once.
func (c *Cache[V]) Watch(key string, fetch Fetcher[V], onUpdate func(V, error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return func() {}
	}

	w, ok := c.watchers[key]
	if !ok {
		ctx, cancel := context.WithCancel(c.ctx)
		w = &watcher[V]{
			cancel:      cancel,
			subscribers: map[uint64]func(V, error){},
		}
		c.watchers[key] = w
		c.wg.Go(func() {
			c.refresh(ctx, key, fetch, w)
		})
	}

	c.nextID++
	id := c.nextID
	w.subscribers[id] = onUpdate

	var once sync.Once
	return func() {
		once.Do(func() {
			c.unsubscribe(key, w, id)
		})
	}
}

func (c *Cache[V]) refresh(ctx context.Context, key string, fetch Fetcher[V], w *watcher[V]) {
	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value, err := c.Fetch(ctx, key, fetch)
			if ctx.Err() != nil {
				return
			}

			c.mu.RLock()
			subscribers := make([]func(V, error), 0, len(w.subscribers))
			for _, onUpdate := range w.subscribers {
				if onUpdate != nil {
					subscribers = append(subscribers, onUpdate)
				}
			}
			c.mu.RUnlock()

			for _, onUpdate := range subscribers {
				onUpdate(value, err)
			}
		}
	}
}

func (c *Cache[V]) unsubscribe(key string, w *watcher[V], id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(w.subscribers, id)
	if len(w.subscribers) > 0 {
		return
	}

	w.cancel()
	if c.watchers[key] == w {
		delete(c.watchers, key)
	}
}

func (c *Cache[V]) Watching(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.watchers[key]
	return ok
}

// Close stops every watcher and waits for them to exit.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	c.cancel()
	c.watchers = map[string]*watcher[V]{}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Cache[V]) fresh(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.entries[key]
	if !ok || c.config.Now().Sub(cached.updatedAt) >= c.config.StaleTime {
		var zero V
		return zero, false
	}

	return cached.value, true
}
