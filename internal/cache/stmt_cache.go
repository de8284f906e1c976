// Package cache holds the per-connection prepared statement cache.
package cache

import (
	"container/list"
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
)

// DefaultStmtCacheCapacity is used when a non-positive capacity is requested.
const DefaultStmtCacheCapacity = 1000

// PrepareFunc prepares a statement on the link the cache belongs to.
type PrepareFunc func(ctx context.Context, query string) (*sql.Stmt, error)

// StmtCache stores prepared statements keyed by their native SQL text with
// LRU eviction. Evicted and replaced statements are closed.
type StmtCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*list.Element
	lruList  *list.List

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key  string
	stmt *sql.Stmt
}

// NewStmtCache creates a cache with DefaultStmtCacheCapacity.
func NewStmtCache() *StmtCache {
	return NewStmtCacheWithCapacity(DefaultStmtCacheCapacity)
}

// NewStmtCacheWithCapacity creates a cache holding at most capacity statements.
func NewStmtCacheWithCapacity(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = DefaultStmtCacheCapacity
	}
	return &StmtCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get returns the cached statement for key and marks it most recently used.
func (sc *StmtCache) Get(key string) (*sql.Stmt, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	elem, exists := sc.items[key]
	if !exists {
		sc.misses.Add(1)
		return nil, false
	}

	sc.lruList.MoveToFront(elem)
	sc.hits.Add(1)
	return elem.Value.(*cacheEntry).stmt, true
}

// GetOrPrepare returns the cached statement for query, preparing and caching
// it on a miss. A failed prepare caches nothing.
func (sc *StmtCache) GetOrPrepare(ctx context.Context, query string, prepare PrepareFunc) (*sql.Stmt, error) {
	if stmt, ok := sc.Get(query); ok {
		return stmt, nil
	}
	stmt, err := prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.Set(query, stmt)
	return stmt, nil
}

// Set stores stmt under key, evicting the least recently used entry when full.
func (sc *StmtCache) Set(key string, stmt *sql.Stmt) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if elem, exists := sc.items[key]; exists {
		sc.lruList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		if entry.stmt != stmt {
			_ = entry.stmt.Close()
		}
		entry.stmt = stmt
		return
	}

	if sc.lruList.Len() >= sc.capacity {
		sc.evictOldest()
	}

	sc.items[key] = sc.lruList.PushFront(&cacheEntry{key: key, stmt: stmt})
}

// Delete closes and removes the statement for key. It reports whether one was cached.
func (sc *StmtCache) Delete(key string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	elem, exists := sc.items[key]
	if !exists {
		return false
	}
	sc.lruList.Remove(elem)
	delete(sc.items, key)
	_ = elem.Value.(*cacheEntry).stmt.Close()
	return true
}

// evictOldest must be called with the lock held.
func (sc *StmtCache) evictOldest() {
	elem := sc.lruList.Back()
	if elem == nil {
		return
	}

	sc.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(sc.items, entry.key)
	_ = entry.stmt.Close()
	sc.evictions.Add(1)
}

// Clear closes and removes every statement. Statistics are kept.
func (sc *StmtCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for elem := sc.lruList.Front(); elem != nil; elem = elem.Next() {
		_ = elem.Value.(*cacheEntry).stmt.Close()
	}

	sc.items = make(map[string]*list.Element, sc.capacity)
	sc.lruList.Init()
}

// Stats holds cache performance metrics.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// HitRate is hits / (hits + misses), or 0 before the first lookup.
	HitRate float64
}

// Stats returns cache statistics.
func (sc *StmtCache) Stats() Stats {
	sc.mu.RLock()
	size := sc.lruList.Len()
	sc.mu.RUnlock()

	hits := sc.hits.Load()
	misses := sc.misses.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:      size,
		Capacity:  sc.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: sc.evictions.Load(),
		HitRate:   hitRate,
	}
}
