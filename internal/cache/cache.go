package cache

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"idtree/internal/base"
)

// Cache holds decoded-on-demand page images keyed by offset.
//
// Clean pages (identical to the data file) live in a bounded LRU and may be
// evicted at any time. Dirty pages (logged in the WAL but not yet applied to
// the data file) are pinned in a separate set until MarkClean, since the data
// file cannot serve them. Not safe for concurrent use.
type Cache struct {
	lru   *freelru.LRU[base.PageOffset, *base.Page]
	dirty map[base.PageOffset]*base.Page

	// Stats
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

const (
	MinCacheSize = 16 // Minimum: hold a root-to-leaf path plus split siblings
)

func hashOffset(off base.PageOffset) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(off))
	return uint32(xxhash.Sum64(b[:]))
}

// New creates a cache holding at most maxSize clean pages.
func New(maxSize int) (*Cache, error) {
	maxSize = max(maxSize, MinCacheSize)

	lru, err := freelru.New[base.PageOffset, *base.Page](uint32(maxSize), hashOffset)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		lru:   lru,
		dirty: make(map[base.PageOffset]*base.Page),
	}
	lru.SetOnEvict(func(base.PageOffset, *base.Page) {
		c.evictions.Add(1)
	})
	return c, nil
}

// Get returns the cached page for off. Callers must not modify it.
func (c *Cache) Get(off base.PageOffset) (*base.Page, bool) {
	if page, ok := c.dirty[off]; ok {
		c.hits.Add(1)
		return page, true
	}
	if page, ok := c.lru.Get(off); ok {
		c.hits.Add(1)
		return page, true
	}
	c.misses.Add(1)
	return nil, false
}

// PutClean caches a page that matches the data file.
func (c *Cache) PutClean(off base.PageOffset, page *base.Page) {
	if _, ok := c.dirty[off]; ok {
		// The pinned version is newer than anything read from disk.
		return
	}
	c.lru.Add(off, page)
}

// PutDirty pins a page written by a logged mutation.
func (c *Cache) PutDirty(off base.PageOffset, page *base.Page) {
	c.lru.Remove(off)
	c.dirty[off] = page
}

// MarkClean moves every pinned page into the LRU once the WAL has been
// applied to the data file. Returns the number of pages released.
func (c *Cache) MarkClean() int {
	n := len(c.dirty)
	for off, page := range c.dirty {
		c.lru.Add(off, page)
	}
	clear(c.dirty)
	return n
}

// DirtyCount returns the number of pinned pages.
func (c *Cache) DirtyCount() int {
	return len(c.dirty)
}

// Size returns current number of cached entries
func (c *Cache) Size() int {
	return c.lru.Len() + len(c.dirty)
}

// Purge drops every clean page. Pinned pages stay.
func (c *Cache) Purge() {
	c.lru.Purge()
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

