package algo

import (
	"fmt"

	"idtree/internal/base"
)

// TreeStats describes the shape of a tree.
type TreeStats struct {
	Height    int // levels, a lone root leaf is 1
	Leaves    int
	Internals int
	Keys      int
}

// Pages returns the number of node pages reachable from the root.
func (s TreeStats) Pages() int {
	return s.Leaves + s.Internals
}

// Walk calls fn for every key in ascending order. Iteration stops at the
// first error returned by fn.
func Walk(r PageReader, root base.PageOffset, fn func(base.Key) error) error {
	it := NewIterator(r, root)
	for it.Next() {
		if err := fn(it.Key()); err != nil {
			return err
		}
	}
	return it.Err()
}

// bound is the key range a subtree may hold: (lo, hi].
type bound struct {
	lo, hi       base.Key
	hasLo, hasHi bool
}

func (b bound) admits(k base.Key) bool {
	if b.hasLo && k.Compare(b.lo) <= 0 {
		return false
	}
	if b.hasHi && k.Compare(b.hi) > 0 {
		return false
	}
	return true
}

// Check visits every node reachable from root and verifies the structural
// invariants: keys strictly ascending within a node and inside the range
// implied by the parent separators, every leaf at the same depth, no page
// reachable twice. It returns the tree's shape.
func Check(r PageReader, root base.PageOffset) (TreeStats, error) {
	c := checker{reader: r, seen: make(map[base.PageOffset]struct{})}
	if err := c.visit(root, bound{}, 1); err != nil {
		return TreeStats{}, err
	}
	return c.stats, nil
}

type checker struct {
	reader    PageReader
	seen      map[base.PageOffset]struct{}
	stats     TreeStats
	leafDepth int
}

func (c *checker) visit(off base.PageOffset, b bound, depth int) error {
	if depth > MaxDepth {
		return ErrTreeTooDeep
	}
	if _, dup := c.seen[off]; dup {
		return fmt.Errorf("%w: page %d reachable twice", ErrTreeCorrupt, off)
	}
	c.seen[off] = struct{}{}

	node, err := readNode(c.reader, off)
	if err != nil {
		return err
	}

	switch n := node.(type) {
	case *base.LeafNode:
		if err := checkKeys(off, n.Used(), b); err != nil {
			return err
		}
		if c.leafDepth == 0 {
			c.leafDepth = depth
			c.stats.Height = depth
		} else if depth != c.leafDepth {
			return fmt.Errorf("%w: leaf %d at depth %d, expected %d", ErrTreeCorrupt, off, depth, c.leafDepth)
		}
		c.stats.Leaves++
		c.stats.Keys += int(n.Count)
		return nil

	case *base.InternalNode:
		keys := n.UsedKeys()
		if len(keys) == 0 {
			return fmt.Errorf("%w: internal page %d has no separators", ErrTreeCorrupt, off)
		}
		if err := checkKeys(off, keys, b); err != nil {
			return err
		}
		c.stats.Internals++
		for i, child := range n.UsedChildren() {
			cb := b
			if i > 0 {
				cb.lo, cb.hasLo = keys[i-1], true
			}
			if i < len(keys) {
				cb.hi, cb.hasHi = keys[i], true
			}
			if err := c.visit(child, cb, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func checkKeys(off base.PageOffset, keys []base.Key, b bound) error {
	for i, k := range keys {
		if i > 0 && keys[i-1].Compare(k) >= 0 {
			return fmt.Errorf("%w: page %d keys out of order at %d", ErrTreeCorrupt, off, i)
		}
		if !b.admits(k) {
			return fmt.Errorf("%w: page %d key %s outside parent range", ErrTreeCorrupt, off, k)
		}
	}
	return nil
}
