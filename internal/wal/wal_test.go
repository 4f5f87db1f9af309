package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idtree/internal/base"
)

// memFile collects applied pages in memory.
type memFile struct {
	pages  map[base.PageOffset]*base.Page
	writes int
	syncs  int
}

func newMemFile() *memFile {
	return &memFile{pages: make(map[base.PageOffset]*base.Page)}
}

func (m *memFile) WritePage(off base.PageOffset, page *base.Page) error {
	m.pages[off] = page.Clone()
	m.writes++
	return nil
}

func (m *memFile) Sync() error {
	m.syncs++
	return nil
}

func (m *memFile) header(t *testing.T) base.Header {
	t.Helper()
	p, ok := m.pages[base.NullOffset]
	require.True(t, ok, "header page not written")
	return base.DecodeHeader(p)
}

func openWAL(t *testing.T) (*WAL, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.idt.wal")
	w, err := Open(path, SyncEveryCommit, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func leafPage(vals ...uint64) *base.Page {
	leaf := &base.LeafNode{}
	for _, v := range vals {
		leaf.Insert(base.KeyFrom64(v))
	}
	return base.NodePage(leaf)
}

func TestWriteInitFlush(t *testing.T) {
	t.Parallel()

	w, _ := openWAL(t)
	require.NoError(t, w.WriteInit())
	assert.Greater(t, w.Size(), int64(0))

	dst := newMemFile()
	stats, err := w.Flush(dst)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, dst.syncs)
	assert.Equal(t, int64(0), w.Size())

	h := dst.header(t)
	assert.Equal(t, base.Header{Root: 1, NextPageOffset: 2}, h)

	root, err := base.DecodeLeaf(dst.pages[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), root.Count)
}

func TestFlushAppliesBatchesInOrder(t *testing.T) {
	t.Parallel()

	w, _ := openWAL(t)
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(1, leafPage(1))}))
	require.NoError(t, w.WriteLogs([]Entry{
		PageEntry(1, leafPage(1, 2)),
		HeaderEntry(base.Header{Root: 1, NextPageOffset: 5}),
	}))

	dst := newMemFile()
	stats, err := w.Flush(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 3, stats.Entries)

	leaf, err := base.DecodeLeaf(dst.pages[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(2), leaf.Count, "later batch wins")
	assert.Equal(t, base.PageOffset(5), dst.header(t).NextPageOffset)
}

func TestFlushEmptyLog(t *testing.T) {
	t.Parallel()

	w, _ := openWAL(t)
	dst := newMemFile()
	stats, err := w.Flush(dst)
	require.NoError(t, err)
	assert.Equal(t, FlushStats{}, stats)
	assert.Zero(t, dst.syncs, "nothing applied, nothing synced")
}

func TestFlushIsIdempotent(t *testing.T) {
	t.Parallel()

	w, path := openWAL(t)
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(3, leafPage(7, 8))}))

	// Keep a copy of the log, as if the process died right after applying.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	first := newMemFile()
	_, err = w.Flush(first)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, raw, 0600))
	w2, err := Open(path, SyncEveryCommit, 0)
	require.NoError(t, err)
	defer w2.Close()

	second := newMemFile()
	second.pages[3] = first.pages[3].Clone()
	_, err = w2.Flush(second)
	require.NoError(t, err)

	assert.Equal(t, first.pages[3].Data, second.pages[3].Data)
}

func TestUncommittedBatchDiscarded(t *testing.T) {
	t.Parallel()

	w, path := openWAL(t)
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(1, leafPage(1))}))

	// A batch whose commit record never made it to disk.
	buf := appendRecord(nil, PageEntry(2, leafPage(2)), w.batch+1)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	_, err = f.Write(buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := Open(path, SyncEveryCommit, 0)
	require.NoError(t, err)
	defer w2.Close()

	// New batches after the dangling one still replay.
	require.NoError(t, w2.WriteLogs([]Entry{PageEntry(4, leafPage(4))}))

	dst := newMemFile()
	stats, err := w2.Flush(dst)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 1, stats.Discarded)
	assert.Contains(t, dst.pages, base.PageOffset(1))
	assert.NotContains(t, dst.pages, base.PageOffset(2))
	assert.Contains(t, dst.pages, base.PageOffset(4))
}

func TestTornTailIgnored(t *testing.T) {
	t.Parallel()

	w, path := openWAL(t)
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(1, leafPage(1))}))
	good := w.Size()
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(2, leafPage(2))}))

	// Cut the second batch in half.
	require.NoError(t, os.Truncate(path, good+RecordHeaderSize+100))

	w2, err := Open(path, SyncEveryCommit, 0)
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, good, w2.Size(), "tail cut at open")

	dst := newMemFile()
	stats, err := w2.Flush(dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, int64(RecordHeaderSize+100), stats.TornBytes)
	assert.NotContains(t, dst.pages, base.PageOffset(2))
}

func TestChecksumMismatchStopsReplay(t *testing.T) {
	t.Parallel()

	w, path := openWAL(t)
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(1, leafPage(1))}))
	good := w.Size()
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(2, leafPage(2))}))
	require.NoError(t, w.WriteLogs([]Entry{PageEntry(3, leafPage(3))}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[good+RecordHeaderSize+40] ^= 0xFF // flip a byte inside page 2's image
	require.NoError(t, os.WriteFile(path, raw, 0600))

	w2, err := Open(path, SyncEveryCommit, 0)
	require.NoError(t, err)
	defer w2.Close()

	dst := newMemFile()
	stats, err := w2.Flush(dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Batches)
	assert.Contains(t, dst.pages, base.PageOffset(1))
	assert.NotContains(t, dst.pages, base.PageOffset(2))
	assert.NotContains(t, dst.pages, base.PageOffset(3), "nothing after a corrupt record is trusted")
}

func TestWriteLogsValidation(t *testing.T) {
	t.Parallel()

	w, _ := openWAL(t)
	require.NoError(t, w.WriteLogs(nil))
	assert.Equal(t, int64(0), w.Size())

	assert.Error(t, w.WriteLogs([]Entry{{Type: 9}}))
	assert.Error(t, w.WriteLogs([]Entry{PageEntry(0, leafPage(1))}), "null offset")
	assert.Error(t, w.WriteLogs([]Entry{{Type: EntryPage, Offset: 3}}), "missing page")
	assert.Equal(t, int64(0), w.Size())
}

func TestSyncModes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, mode := range []SyncMode{SyncEveryCommit, SyncBytes, SyncOff} {
		w, err := Open(filepath.Join(dir, "mode.wal"), mode, 1)
		require.NoError(t, err)
		require.NoError(t, w.WriteLogs([]Entry{PageEntry(1, leafPage(1))}))
		if mode == SyncOff {
			assert.Greater(t, w.bytesSinceSync, 0, "sync off never resets the counter")
		} else {
			assert.Zero(t, w.bytesSinceSync)
		}
		_, err = w.Flush(newMemFile())
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	w, err := Open(filepath.Join(dir, "bad.wal"), SyncMode(42), 0)
	require.NoError(t, err)
	defer w.Close()
	assert.Error(t, w.WriteLogs([]Entry{PageEntry(1, leafPage(1))}))
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	h := base.Header{FreeStackTop: 3, Root: 9, NextPageOffset: 12}
	buf := appendRecord(nil, HeaderEntry(h), 77)
	require.Len(t, buf, HeaderEntry(h).recordSize())

	e, batch, err := decodeRecord(buf[:RecordHeaderSize], buf[RecordHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, uint64(77), batch)
	assert.Equal(t, EntryHeader, e.Type)
	assert.Equal(t, h, e.Header)

	buf[len(buf)-1] ^= 1
	_, _, err = decodeRecord(buf[:RecordHeaderSize], buf[RecordHeaderSize:])
	assert.ErrorIs(t, err, errChecksum)
}
