package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"idtree/internal/base"
)

var (
	ErrShortRead = errors.New("short page read")
	ErrLocked    = errors.New("data file is locked by another process")
	ErrClosed    = errors.New("storage closed")
)

// File is the main data file: a flat sequence of PageSize pages addressed by
// base.PageOffset. It holds an exclusive advisory lock while open.
type File struct {
	file *os.File

	// Stats counters
	reads   atomic.Uint64
	writes  atomic.Uint64
	read    atomic.Uint64
	written atomic.Uint64
}

// Open opens or creates the data file and locks it.
func Open(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	if err := lock(file); err != nil {
		file.Close()
		return nil, err
	}

	return &File{file: file}, nil
}

// ReadPage reads the page at off.
func (f *File) ReadPage(off base.PageOffset) (*base.Page, error) {
	if f.file == nil {
		return nil, ErrClosed
	}

	page := &base.Page{}
	f.reads.Add(1)
	n, err := f.file.ReadAt(page.Data[:], off.Position())
	f.read.Add(uint64(n))
	if n == base.PageSize {
		return page, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: page %d: got %d bytes, expected %d", ErrShortRead, off, n, base.PageSize)
	}
	return nil, err
}

// WritePage writes page at off. The file grows as needed.
func (f *File) WritePage(off base.PageOffset, page *base.Page) error {
	if f.file == nil {
		return ErrClosed
	}

	f.writes.Add(1)
	n, err := f.file.WriteAt(page.Data[:], off.Position())
	defer f.written.Add(uint64(n))
	if err != nil {
		return err
	}
	if n != base.PageSize {
		return fmt.Errorf("short write: wrote %d bytes, expected %d", n, base.PageSize)
	}

	return nil
}

// Size returns the file length in bytes.
func (f *File) Size() (int64, error) {
	if f.file == nil {
		return 0, ErrClosed
	}
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Empty returns whether the file is empty
func (f *File) Empty() (bool, error) {
	size, err := f.Size()
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

// Sync flushes written pages to stable storage.
func (f *File) Sync() error {
	if f.file == nil {
		return ErrClosed
	}
	return Datasync(f.file)
}

// Close releases the lock and closes the file.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	_ = unlock(f.file)
	err := f.file.Close()
	f.file = nil
	return err
}

// Stats holds I/O statistics
type Stats struct {
	Reads   uint64
	Writes  uint64
	Read    uint64
	Written uint64
}

// Stats returns I/O statistics
func (f *File) Stats() Stats {
	return Stats{
		Reads:   f.reads.Load(),
		Writes:  f.writes.Load(),
		Read:    f.read.Load(),
		Written: f.written.Load(),
	}
}
