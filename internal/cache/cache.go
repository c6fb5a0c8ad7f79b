package cache

import (
	"container/list"
	"sync"

	"github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/extractor"
	"github.com/livefir/livereload/internal/identity"
)

// Stats mirrors the statistics spec §4.3 requires the cache to surface.
type Stats struct {
	Hits             int64
	Misses           int64
	Evictions        int64
	CurrentSizeBytes int64
	EntryCount       int64
}

// Config bounds the cache's aggregate byte size and dependency-invalidation
// cascade depth.
type Config struct {
	MaxSizeBytes    int64 // Default: 64 MiB
	MaxCascadeDepth int   // Default: 8
}

// DefaultConfig returns the cache's default bounds.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:    64 * 1024 * 1024,
		MaxCascadeDepth: 8,
	}
}

// Cache is the bounded Identity -> Record map described in spec §4.3.
//
// Readers (diff, broadcast) call Get and receive a *Record snapshot that
// is never mutated in place; writers (the extractor-driven Upsert path)
// take an exclusive lock for the duration of one entry's update, per the
// single-writer/many-reader discipline of spec §5.
type Cache struct {
	mu       sync.RWMutex
	config   Config
	entries  map[identity.Identity]*list.Element // identity -> lru element
	lru      *list.List                           // front = most recently used
	size     int64
	deps     map[identity.Identity]map[identity.Identity]struct{} // A -> {B: changes to A may affect B}
	stats    Stats
}

type lruItem struct {
	id     identity.Identity
	record *Record
}

// New creates an empty Cache bounded by cfg.
func New(cfg Config) *Cache {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultConfig().MaxSizeBytes
	}
	if cfg.MaxCascadeDepth <= 0 {
		cfg.MaxCascadeDepth = DefaultConfig().MaxCascadeDepth
	}
	return &Cache{
		config:  cfg,
		entries: make(map[identity.Identity]*list.Element),
		lru:     list.New(),
		deps:    make(map[identity.Identity]map[identity.Identity]struct{}),
	}
}

// Get returns a snapshot of the record for id, touching its LRU
// recency. The returned *Record must be treated as immutable by the
// caller -- it may be diffed against concurrently from other goroutines.
func (c *Cache) Get(id identity.Identity) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*lruItem).record, true
}

// Upsert inserts or updates the record for id, classifying the result per
// spec §4.3. dependencies declares the set of identities this template's
// rendered output may in turn affect (an outbound edge A -> each of B).
func (c *Cache) Upsert(id identity.Identity, raw extractor.RawTemplate, root *ast.Node, dependencies []identity.Identity) UpsertResult {
	next := newRecord(id, raw, root)
	for _, d := range dependencies {
		next.Dependencies[d] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.entries[id]
	var result UpsertResult
	if !exists {
		result = UpsertResult{Outcome: NewTemplate, NewRecord: next}
		el = c.lru.PushFront(&lruItem{id: id, record: next})
		c.entries[id] = el
		c.size += int64(next.SizeBytes)
		c.stats.EntryCount++
	} else {
		old := el.Value.(*lruItem).record
		if old.ContentHash.Equal(next.ContentHash) {
			// Preserve the existing record (keeps LastSeen/AST stable) but
			// still touch recency -- re-extraction of unchanged source is
			// itself evidence of use.
			c.lru.MoveToFront(el)
			result = UpsertResult{Outcome: Unchanged, NewRecord: old}
		} else {
			c.size += int64(next.SizeBytes - old.SizeBytes)
			el.Value = &lruItem{id: id, record: next}
			c.lru.MoveToFront(el)
			result = UpsertResult{Outcome: ChangedTemplate, OldRecord: old, NewRecord: next}
		}
	}

	c.setDependencyEdges(id, dependencies)
	c.evictLocked()
	c.stats.CurrentSizeBytes = c.size
	return result
}

func (c *Cache) setDependencyEdges(from identity.Identity, to []identity.Identity) {
	set := c.deps[from]
	if set == nil {
		set = make(map[identity.Identity]struct{})
		c.deps[from] = set
	}
	for _, t := range to {
		set[t] = struct{}{}
	}
}

// Invalidate marks every identity reachable from ids (inclusive) via
// outbound dependency edges, up to the configured cascade depth, by
// evicting them from the cache. Cycles are handled by the visited set.
// The returned slice lists every identity actually invalidated.
func (c *Cache) Invalidate(ids ...identity.Identity) []identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()

	visited := make(map[identity.Identity]bool)
	var frontier []identity.Identity
	frontier = append(frontier, ids...)

	for depth := 0; depth < c.config.MaxCascadeDepth && len(frontier) > 0; depth++ {
		var next []identity.Identity
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true
			for dep := range c.deps[id] {
				if !visited[dep] {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	var removed []identity.Identity
	for id := range visited {
		if c.removeLocked(id) {
			removed = append(removed, id)
		}
	}
	return removed
}

// EvictUntil evicts least-recently-used entries until the aggregate
// cached byte size is at most bound.
func (c *Cache) EvictUntil(bound int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictUntilLocked(bound)
}

func (c *Cache) evictLocked() {
	c.evictUntilLocked(c.config.MaxSizeBytes)
}

func (c *Cache) evictUntilLocked(bound int64) {
	for c.size > bound {
		back := c.lru.Back()
		if back == nil {
			return
		}
		item := back.Value.(*lruItem)
		c.lru.Remove(back)
		delete(c.entries, item.id)
		c.size -= int64(item.record.SizeBytes)
		c.stats.Evictions++
		c.stats.EntryCount--
	}
}

func (c *Cache) removeLocked(id identity.Identity) bool {
	el, ok := c.entries[id]
	if !ok {
		return false
	}
	item := el.Value.(*lruItem)
	c.lru.Remove(el)
	delete(c.entries, id)
	c.size -= int64(item.record.SizeBytes)
	c.stats.EntryCount--
	return true
}

// Stats returns a snapshot of cache statistics (spec §4.3).
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.CurrentSizeBytes = c.size
	return s
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
