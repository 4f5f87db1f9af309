package idtree

import (
	"iter"

	"idtree/internal/algo"
)

// Cursor provides ordered iteration over the tree's keys.
//
// A cursor reads the tree as of its creation; inserting while a cursor is
// open may or may not be reflected in what it returns.
type Cursor struct {
	tree  *Tree
	it    *algo.Iterator
	key   Key
	valid bool
	err   error
}

// Cursor returns a cursor positioned before the first key.
func (t *Tree) Cursor() *Cursor {
	c := &Cursor{tree: t}
	if t.closed {
		c.err = ErrTreeClosed
		return c
	}
	c.it = algo.NewIterator(t.pages(), t.header.Root)
	return c
}

// First positions the cursor at the smallest key.
func (c *Cursor) First() (Key, bool) {
	if c.it == nil {
		return Key{}, false
	}
	c.it.Rewind()
	c.err = nil
	return c.Next()
}

// Next advances to the next key in ascending order. On a fresh cursor it
// returns the first key.
func (c *Cursor) Next() (Key, bool) {
	c.valid = false
	if c.tree.closed {
		c.err = ErrTreeClosed
	}
	if c.err != nil || c.it == nil {
		return Key{}, false
	}

	if !c.it.Next() {
		c.err = c.it.Err()
		return Key{}, false
	}
	c.key = c.it.Key()
	c.valid = true
	return c.key, true
}

// Key returns the current key. Only meaningful while Valid.
func (c *Cursor) Key() Key {
	return c.key
}

// Valid reports whether the cursor is positioned on a key.
func (c *Cursor) Valid() bool {
	return c.valid
}

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}

// All returns an iterator over every key in ascending order. A failed read
// is yielded once as a non-nil error and ends the sequence.
func (t *Tree) All() iter.Seq2[Key, error] {
	return func(yield func(Key, error) bool) {
		c := t.Cursor()
		for {
			key, ok := c.Next()
			if !ok {
				break
			}
			if !yield(key, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Key{}, err)
		}
	}
}
