package idtree

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"idtree/internal/algo"
	"idtree/internal/base"
	"idtree/internal/cache"
	"idtree/internal/metrics"
	"idtree/internal/storage"
	"idtree/internal/wal"
)

// Key is a 128-bit identifier. Keys order numerically.
type Key = base.Key

// Header is the tree's root metadata as stored on page 0.
type Header = base.Header

// KeyFromUint64 returns the key with the given low 64 bits.
func KeyFromUint64(v uint64) Key {
	return base.KeyFrom64(v)
}

// KeyFromUUID converts a UUID so that key order equals UUID byte order.
func KeyFromUUID(u uuid.UUID) Key {
	return base.KeyFromUUID(u)
}

// Tree is a durable ordered set of 128-bit identifiers stored in a paged
// file with a write-ahead log next to it (path + ".wal").
//
// A Tree is single-writer. It does no internal locking; callers sharing one
// between goroutines serialize every call themselves. A second process
// opening the same file gets ErrLocked.
type Tree struct {
	path    string
	file    *storage.File
	wal     *wal.WAL
	cache   *cache.Cache
	header  base.Header
	opts    Options
	log     Logger
	metrics *metrics.Metrics
	closed  bool
	failed  error // set when a WAL append fails; the handle must be reopened
}

// Stats describes a tree and its I/O.
type Stats struct {
	Height    int
	Keys      int
	Leaves    int
	Internals int
	NodePages int // pages reachable from the root

	AllocatedPages uint32 // next page offset, header included
	WALBytes       int64

	CachedPages    int
	DirtyPages     int
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64

	PageReads  uint64
	PageWrites uint64
}

// Open opens or creates the tree at path. Committed WAL batches left by a
// previous process are applied to the data file before Open returns.
func Open(path string, options ...Option) (*Tree, error) {
	// Apply options
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	file, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// Open WAL (Tree owns WAL lifecycle)
	w, err := wal.Open(path+".wal", opts.syncMode, opts.syncBytes)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open %s.wal: %w", path, err)
	}

	c, err := cache.New(opts.cacheSize)
	if err != nil {
		w.Close()
		file.Close()
		return nil, err
	}

	var reg prometheus.Registerer
	if opts.registerer != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"path": path}, opts.registerer)
	}

	t := &Tree{
		path:    path,
		file:    file,
		wal:     w,
		cache:   c,
		opts:    opts,
		log:     opts.logger,
		metrics: metrics.New(reg),
	}

	if err := t.recover(); err != nil {
		t.metrics.Unregister()
		w.Close()
		file.Close()
		return nil, err
	}

	return t, nil
}

// recover applies the WAL, bootstraps an empty file and loads the header.
func (t *Tree) recover() error {
	stats, err := t.flush()
	if err != nil {
		return err
	}
	if stats.Batches > 0 {
		t.log.Info("Recovered WAL", "path", t.path, "batches", stats.Batches, "entries", stats.Entries)
	}

	empty, err := t.file.Empty()
	if err != nil {
		return err
	}
	if empty {
		if err := t.wal.WriteInit(); err != nil {
			return fmt.Errorf("init tree: %w", err)
		}
		if _, err := t.flush(); err != nil {
			return fmt.Errorf("init tree: %w", err)
		}
		t.log.Info("Initialized new tree", "path", t.path)
	}

	page, err := t.file.ReadPage(base.NullOffset)
	if err != nil {
		return fmt.Errorf("%w: read header: %w", ErrCorruption, err)
	}
	header := base.DecodeHeader(page)
	if err := header.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruption, err)
	}

	t.header = header
	t.metrics.UpdateTree(uint32(header.NextPageOffset))
	return nil
}

// flush applies the WAL to the data file.
func (t *Tree) flush() (wal.FlushStats, error) {
	stats, err := t.wal.Flush(t.file)
	if err != nil {
		return stats, err
	}

	t.metrics.RecordReplay(stats.Batches, stats.TornBytes)
	if stats.TornBytes > 0 {
		t.log.Warn("Discarded torn WAL tail", "path", t.path, "bytes", stats.TornBytes)
	}
	if stats.Discarded > 0 {
		t.log.Warn("Discarded uncommitted WAL entries", "path", t.path, "entries", stats.Discarded)
	}
	return stats, nil
}

// Insert adds key to the set and reports whether it was absent. Once Insert
// returns, the change is in the WAL (and durable under SyncEveryCommit).
func (t *Tree) Insert(key Key) (bool, error) {
	n, err := t.insert([]Key{key})
	return n > 0, err
}

// InsertMany adds keys as one atomic WAL batch: after a crash either all of
// them are present or none. Returns the number of keys that were absent.
func (t *Tree) InsertMany(keys []Key) (int, error) {
	return t.insert(keys)
}

func (t *Tree) insert(keys []Key) (int, error) {
	if t.closed {
		return 0, ErrTreeClosed
	}
	if t.failed != nil {
		return 0, fmt.Errorf("%w: %w", ErrTreeFailed, t.failed)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	start := time.Now()

	res, err := algo.NewOperator(t.header, t.pages()).InsertBatch(keys)
	if err != nil {
		t.metrics.RecordInsertError(len(keys), time.Since(start))
		return 0, err
	}
	if res.Duplicate {
		t.metrics.RecordInsert(0, res.Duplicates, 0, 0, time.Since(start))
		return 0, nil
	}

	before := t.wal.Size()
	if err := t.wal.WriteLogs(res.Entries); err != nil {
		// The batch may be committed on disk without being adopted here, so
		// the in-memory state can no longer be trusted.
		t.failed = err
		t.metrics.RecordInsertError(len(keys), time.Since(start))
		t.log.Error("WAL append failed, reopen required", "path", t.path, "error", err)
		return 0, fmt.Errorf("wal append: %w", err)
	}
	t.metrics.RecordWALAppend(t.wal.Size() - before)

	// The log is authoritative now; adopt the new state.
	if res.Header != nil {
		t.header = *res.Header
		t.metrics.UpdateTree(uint32(t.header.NextPageOffset))
	}
	for _, u := range res.Pages {
		t.cache.PutDirty(u.Offset, u.Page)
	}
	t.metrics.RecordInsert(res.Inserted, res.Duplicates, res.LeafSplits, res.InternalSplits, time.Since(start))

	if t.wal.Size() >= t.opts.checkpointBytes {
		if err := t.checkpoint(); err != nil {
			return res.Inserted, err
		}
	}
	t.updateCacheMetrics()
	return res.Inserted, nil
}

// InsertUUID inserts the key for u.
func (t *Tree) InsertUUID(u uuid.UUID) (bool, error) {
	return t.Insert(base.KeyFromUUID(u))
}

// Delete is not supported and always fails.
func (t *Tree) Delete(Key) error {
	if t.closed {
		return ErrTreeClosed
	}
	return ErrDeleteNotSupported
}

// Contains reports whether key is in the set.
func (t *Tree) Contains(key Key) (bool, error) {
	if t.closed {
		return false, ErrTreeClosed
	}
	return algo.Contains(t.pages(), t.header.Root, key)
}

// ContainsUUID reports whether the key for u is in the set.
func (t *Tree) ContainsUUID(u uuid.UUID) (bool, error) {
	return t.Contains(base.KeyFromUUID(u))
}

// Len returns the number of keys by walking every leaf.
func (t *Tree) Len() (int, error) {
	if t.closed {
		return 0, ErrTreeClosed
	}
	n := 0
	err := algo.Walk(t.pages(), t.header.Root, func(Key) error {
		n++
		return nil
	})
	return n, err
}

// Header returns the current header, including changes not yet
// checkpointed into the data file.
func (t *Tree) Header() (Header, error) {
	if t.closed {
		return Header{}, ErrTreeClosed
	}
	return t.header, nil
}

// Check verifies the structure of the whole tree.
func (t *Tree) Check() error {
	if t.closed {
		return ErrTreeClosed
	}
	_, err := algo.Check(t.pages(), t.header.Root)
	return err
}

// Stats walks the tree and returns its shape along with I/O counters.
func (t *Tree) Stats() (Stats, error) {
	if t.closed {
		return Stats{}, ErrTreeClosed
	}
	shape, err := algo.Check(t.pages(), t.header.Root)
	if err != nil {
		return Stats{}, err
	}

	cs := t.cache.Stats()
	fs := t.file.Stats()
	return Stats{
		Height:         shape.Height,
		Keys:           shape.Keys,
		Leaves:         shape.Leaves,
		Internals:      shape.Internals,
		NodePages:      shape.Pages(),
		AllocatedPages: uint32(t.header.NextPageOffset),
		WALBytes:       t.wal.Size(),
		CachedPages:    t.cache.Size(),
		DirtyPages:     t.cache.DirtyCount(),
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		CacheEvictions: cs.Evictions,
		PageReads:      fs.Reads,
		PageWrites:     fs.Writes,
	}, nil
}

// Checkpoint writes every logged page into the data file and empties the
// WAL.
func (t *Tree) Checkpoint() error {
	if t.closed {
		return ErrTreeClosed
	}
	if t.failed != nil {
		return fmt.Errorf("%w: %w", ErrTreeFailed, t.failed)
	}
	return t.checkpoint()
}

func (t *Tree) checkpoint() error {
	if t.wal.Size() == 0 {
		return nil
	}
	start := time.Now()

	stats, err := t.flush()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	released := t.cache.MarkClean()

	t.metrics.RecordCheckpoint(time.Since(start))
	t.updateCacheMetrics()
	t.log.Info("Checkpoint complete", "path", t.path, "batches", stats.Batches, "pages", released)
	return nil
}

// Close checkpoints and releases the files. Calling Close twice returns
// ErrTreeClosed. A failed tree skips the checkpoint and leaves the WAL for
// the next Open to replay.
func (t *Tree) Close() error {
	if t.closed {
		return ErrTreeClosed
	}
	t.closed = true
	defer t.metrics.Unregister()

	var errs []error
	if t.failed == nil {
		if err := t.checkpoint(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.wal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wal: %w", err))
	}
	if err := t.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close data file: %w", err))
	}
	t.cache.Purge()

	err := errors.Join(errs...)
	if err != nil {
		t.log.Error("Close failed", "path", t.path, "error", err)
	}
	return err
}

func (t *Tree) updateCacheMetrics() {
	dirty := t.cache.DirtyCount()
	t.metrics.UpdateCache(t.cache.Size()-dirty, dirty)
}

// pages returns the page source operators and iterators read through.
func (t *Tree) pages() algo.PageReader {
	return (*treePages)(t)
}

// treePages reads through the cache and falls back to the data file.
type treePages Tree

func (p *treePages) ReadPage(off base.PageOffset) (*base.Page, error) {
	if page, ok := p.cache.Get(off); ok {
		p.metrics.RecordCacheLookup(true)
		return page, nil
	}
	p.metrics.RecordCacheLookup(false)

	page, err := p.file.ReadPage(off)
	if err != nil {
		return nil, err
	}
	p.cache.PutClean(off, page)
	return page, nil
}
