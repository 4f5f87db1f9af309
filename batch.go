package idtree

import (
	"github.com/google/uuid"

	"idtree/internal/writebuf"
)

// Batch buffers keys in memory and inserts them into the tree as one atomic
// WAL batch. Keys are deduplicated and sorted before they reach the tree.
type Batch struct {
	tree *Tree
	buf  *writebuf.Buffer
}

// NewBatch returns an empty batch. When limit is positive the batch commits
// itself each time it holds limit distinct keys.
func (t *Tree) NewBatch(limit int) *Batch {
	return &Batch{tree: t, buf: writebuf.NewBuffer(limit)}
}

// Add buffers key, committing first if the batch is full.
func (b *Batch) Add(key Key) error {
	if b.tree.closed {
		return ErrTreeClosed
	}
	if b.buf.Add(key) {
		_, err := b.Commit()
		return err
	}
	return nil
}

// AddUUID buffers the key for u.
func (b *Batch) AddUUID(u uuid.UUID) error {
	return b.Add(KeyFromUUID(u))
}

// Len returns the number of buffered keys.
func (b *Batch) Len() int {
	return b.buf.Len()
}

// Commit inserts every buffered key and empties the batch. It returns the
// number of keys that were not already in the tree. If the error happened
// before the keys reached the WAL, the batch keeps them and returns 0. If the
// keys were logged and a later checkpoint failed, the batch is cleared and the
// count is returned alongside the error.
func (b *Batch) Commit() (int, error) {
	if b.buf.Len() == 0 {
		if b.tree.closed {
			return 0, ErrTreeClosed
		}
		return 0, nil
	}

	n, err := b.tree.insert(b.buf.SortedKeys())
	if err != nil && n == 0 {
		return 0, err
	}
	b.buf.Clear()
	return n, err
}

// Discard drops every buffered key.
func (b *Batch) Discard() {
	b.buf.Clear()
}
