package writebuf

import (
	"slices"

	"idtree/internal/base"
)

// Buffer collects keys for a batched insert. Keys are deduplicated on the
// way in and handed out sorted, so a flush walks the tree left to right.
type Buffer struct {
	keys      map[base.Key]struct{}
	threshold int
}

// NewBuffer creates a new write buffer that asks for a flush once it holds
// threshold keys. A threshold below one never asks.
func NewBuffer(threshold int) *Buffer {
	return &Buffer{
		keys:      make(map[base.Key]struct{}),
		threshold: threshold,
	}
}

// Add buffers key. Returns shouldFlush=true once the threshold is reached.
func (b *Buffer) Add(key base.Key) (shouldFlush bool) {
	b.keys[key] = struct{}{}
	return b.threshold > 0 && len(b.keys) >= b.threshold
}

// Len returns the number of buffered keys
func (b *Buffer) Len() int {
	return len(b.keys)
}

// SortedKeys returns all buffered keys in ascending order
func (b *Buffer) SortedKeys() []base.Key {
	keys := make([]base.Key, 0, len(b.keys))
	for k := range b.keys {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, base.Key.Compare)
	return keys
}

// Clear empties the buffer
func (b *Buffer) Clear() {
	clear(b.keys)
}
