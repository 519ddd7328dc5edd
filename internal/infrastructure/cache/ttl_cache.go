package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
)

const defaultCleanupInterval = 30 * time.Second

// cacheEntry wraps a cached value with expiration time
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *cacheEntry[V]) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Stats reports cache effectiveness
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// TTLCache is a process-local cache with per-entry expiry and a background sweeper
type TTLCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[V]
	clock   shared.Clock

	hits   int64
	misses int64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTTLCache creates a cache and starts its cleanup loop; interval <= 0 disables the loop
func NewTTLCache[V any](clock shared.Clock, cleanupInterval time.Duration) *TTLCache[V] {
	if clock == nil {
		clock = shared.SystemClock
	}
	c := &TTLCache[V]{
		entries: make(map[string]*cacheEntry[V]),
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// Get returns the live value for key
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !e.isExpired(c.clock()) {
		atomic.AddInt64(&c.hits, 1)
		return e.value, true
	}
	if ok {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	atomic.AddInt64(&c.misses, 1)
	var zero V
	return zero, false
}

// Set stores value for ttl; a non-positive ttl is a no-op
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = &cacheEntry[V]{value: value, expiresAt: c.clock().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key starting with prefix and returns how many were removed
func (c *TTLCache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry[V])
	c.mu.Unlock()
}

// Stats returns hit/miss counters and the current size
func (c *TTLCache[V]) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   size,
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *TTLCache[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
	})
}

func (c *TTLCache[V]) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *TTLCache[V]) cleanup() {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, k)
		}
	}
}
