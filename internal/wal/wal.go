package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"idtree/internal/base"
	"idtree/internal/storage"
)

// SyncMode controls when the WAL is fsynced to disk.
type SyncMode int

const (
	// SyncEveryCommit fsyncs after every batch.
	// - A returned WriteLogs is durable
	SyncEveryCommit SyncMode = iota

	// SyncBytes fsyncs when bytesPerSync bytes have been written.
	// - Data loss window: up to bytesPerSync bytes on power failure
	SyncBytes

	// SyncOff disables fsync entirely (testing/bulk loads only).
	SyncOff
)

// Applier receives replayed page images. The data file implements it.
type Applier interface {
	WritePage(off base.PageOffset, page *base.Page) error
	Sync() error
}

// WAL is the append-only log sitting next to the data file. Every mutation
// is written here as one batch of page after-images before the page cache
// treats it as authoritative. Not safe for concurrent use.
type WAL struct {
	file   *os.File
	offset int64 // Current write position
	batch  uint64

	torn      int64 // garbage cut from the tail at open
	discarded int   // entries of uncommitted batches seen by the last scan

	// Sync configuration
	syncMode       SyncMode
	bytesPerSync   int
	bytesSinceSync int
}

// FlushStats describes one Flush.
type FlushStats struct {
	Batches   int   // committed batches applied
	Entries   int   // entries applied
	Discarded int   // entries in uncommitted batches
	TornBytes int64 // bytes past the last valid record
}

// Open opens or creates a WAL file with the specified sync mode. A torn or
// corrupt tail left by a crash is cut off.
func Open(path string, syncMode SyncMode, bytesPerSync int) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		file:         file,
		syncMode:     syncMode,
		bytesPerSync: bytesPerSync,
	}

	end, lastBatch, err := w.scan(nil)
	if err != nil {
		file.Close()
		return nil, err
	}
	size, err := w.fileSize()
	if err != nil {
		file.Close()
		return nil, err
	}
	if size > end {
		if err := file.Truncate(end); err != nil {
			file.Close()
			return nil, err
		}
		w.torn = size - end
	}

	w.offset = end
	w.batch = lastBatch
	return w, nil
}

// Size returns the number of bytes currently in the log.
func (w *WAL) Size() int64 {
	return w.offset
}

// WriteInit logs the bootstrap of an empty tree: a header pointing at an
// empty leaf root on page 1.
func (w *WAL) WriteInit() error {
	const root base.PageOffset = 1
	header := base.Header{Root: root, NextPageOffset: root + 1}
	return w.WriteLogs([]Entry{
		PageEntry(root, base.NodePage(&base.LeafNode{})),
		HeaderEntry(header),
	})
}

// WriteLogs appends entries as one committed batch and syncs according to
// the sync mode. The batch is replayed all-or-nothing.
func (w *WAL) WriteLogs(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	size := RecordHeaderSize + checksumSize
	for _, e := range entries {
		if e.Type != EntryPage && e.Type != EntryHeader {
			return fmt.Errorf("%w: %d", errUnknownEntry, e.Type)
		}
		if e.Type == EntryPage && (e.Page == nil || e.Offset.IsNull()) {
			return fmt.Errorf("wal: page entry for offset %d has no page or null offset", e.Offset)
		}
		size += e.recordSize()
	}

	batch := w.batch + 1
	buf := make([]byte, 0, size)
	for _, e := range entries {
		buf = appendRecord(buf, e, batch)
	}
	buf = appendRecord(buf, Entry{Type: entryCommit}, batch)

	n, err := w.file.WriteAt(buf, w.offset)
	if err != nil {
		return err
	}
	w.offset += int64(n)
	w.bytesSinceSync += n
	w.batch = batch

	return w.Sync()
}

// Sync conditionally fsyncs the WAL based on sync mode configuration
func (w *WAL) Sync() error {
	switch w.syncMode {
	case SyncEveryCommit:
		return w.ForceSync()

	case SyncBytes:
		if w.bytesSinceSync >= w.bytesPerSync {
			return w.ForceSync()
		}
		return nil

	case SyncOff:
		return nil

	default:
		return fmt.Errorf("unknown wal sync mode: %d", w.syncMode)
	}
}

// ForceSync unconditionally fsyncs the WAL regardless of sync mode.
func (w *WAL) ForceSync() error {
	if err := storage.Datasync(w.file); err != nil {
		return err
	}
	w.bytesSinceSync = 0
	return nil
}

// Flush applies every committed batch to dst in log order, syncs dst and
// empties the log. Replaying the same log twice yields the same file.
func (w *WAL) Flush(dst Applier) (FlushStats, error) {
	var stats FlushStats

	end, _, err := w.scan(func(batch []Entry) error {
		for _, e := range batch {
			var err error
			switch e.Type {
			case EntryPage:
				err = dst.WritePage(e.Offset, e.Page)
			case EntryHeader:
				err = dst.WritePage(base.NullOffset, e.Header.Page())
			}
			if err != nil {
				return fmt.Errorf("wal flush: apply %s: %w", e, err)
			}
		}
		stats.Batches++
		stats.Entries += len(batch)
		return nil
	})
	if err != nil {
		return stats, err
	}

	size, err := w.fileSize()
	if err != nil {
		return stats, err
	}
	stats.TornBytes = w.torn + size - end
	stats.Discarded = w.discarded
	w.torn = 0

	if stats.Batches > 0 {
		if err := dst.Sync(); err != nil {
			return stats, err
		}
	}

	if size > 0 {
		if err := w.file.Truncate(0); err != nil {
			return stats, err
		}
		if err := w.file.Sync(); err != nil {
			return stats, err
		}
	}
	w.offset = 0
	w.bytesSinceSync = 0

	return stats, nil
}

// Close closes the WAL file
func (w *WAL) Close() error {
	if err := w.ForceSync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *WAL) fileSize() (int64, error) {
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// scan walks the log from the start, handing each committed batch to fn
// (fn may be nil). It returns the end offset of the last intact record and
// the highest batch number seen. Scanning stops quietly at the first torn
// or corrupt record; records of a batch without a commit are dropped.
func (w *WAL) scan(fn func([]Entry) error) (int64, uint64, error) {
	size, err := w.fileSize()
	if err != nil {
		return 0, 0, err
	}

	r := bufio.NewReaderSize(io.NewSectionReader(w.file, 0, size), 64*1024)

	var (
		end       int64
		lastBatch uint64
		pending   []Entry
		pendingID uint64
	)
	w.discarded = 0

	hdr := make([]byte, RecordHeaderSize)
	body := make([]byte, base.PageSize+checksumSize)

	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, 0, fmt.Errorf("wal scan read error: %w", err)
		}

		typ := EntryType(hdr[0])
		n, err := dataLen(typ, binary.LittleEndian.Uint32(hdr[16:20]))
		if err != nil {
			break
		}

		rec := body[:n+checksumSize]
		if _, err := io.ReadFull(r, rec); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, 0, fmt.Errorf("wal scan read error: %w", err)
		}

		e, batch, err := decodeRecord(hdr, rec)
		if err != nil {
			break
		}
		end += int64(RecordHeaderSize + len(rec))
		lastBatch = max(lastBatch, batch)

		if len(pending) > 0 && batch != pendingID {
			// Previous batch never committed.
			w.discarded += len(pending)
			pending = pending[:0]
		}

		if typ == entryCommit {
			if fn != nil && len(pending) > 0 {
				if err := fn(pending); err != nil {
					return 0, 0, err
				}
			}
			pending = nil
			continue
		}

		pending = append(pending, e)
		pendingID = batch
	}

	w.discarded += len(pending)
	return end, lastBatch, nil
}
