// Package algo contains algorithms used for traversing and editing the b+ tree.
package algo

import (
	"errors"
	"fmt"
	"sort"

	"idtree/internal/base"
)

const searchThreshold = 32

// MaxDepth bounds every descent. A well-formed tree addressing 2^32 pages
// is at most 6 levels deep; anything deeper means a pointer cycle.
const MaxDepth = 32

var (
	ErrFileFull    = errors.New("page offsets exhausted")
	ErrTreeTooDeep = errors.New("tree deeper than max depth")
	ErrTreeCorrupt = errors.New("tree invariant violated")
)

// PageReader serves page images by offset. Returned pages are treated as
// read-only.
type PageReader interface {
	ReadPage(off base.PageOffset) (*base.Page, error)
}

// FindChildIndex returns the index of the child to follow for key: the
// first separator >= key, or Count when key is beyond every separator.
func FindChildIndex(n *base.InternalNode, key base.Key) int {
	keys := n.UsedKeys()
	if len(keys) < searchThreshold {
		i := 0
		for i < len(keys) && key.Compare(keys[i]) > 0 {
			i++
		}
		return i
	}

	return sort.Search(len(keys), func(i int) bool {
		return key.Compare(keys[i]) <= 0
	})
}

// SearchLeaf returns the position of the first key >= key and whether it
// is an exact match.
func SearchLeaf(n *base.LeafNode, key base.Key) (int, bool) {
	keys := n.Used()
	var idx int
	if len(keys) < searchThreshold {
		for idx < len(keys) && keys[idx].Compare(key) < 0 {
			idx++
		}
	} else {
		idx = sort.Search(len(keys), func(i int) bool {
			return keys[i].Compare(key) >= 0
		})
	}
	return idx, idx < len(keys) && keys[idx] == key
}

// readNode loads and decodes the node at off.
func readNode(r PageReader, off base.PageOffset) (base.Node, error) {
	if off.IsNull() {
		return nil, fmt.Errorf("%w: null child pointer", ErrTreeCorrupt)
	}
	page, err := r.ReadPage(off)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", off, err)
	}
	node, err := base.DecodeNode(page)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", off, err)
	}
	return node, nil
}

// Contains reports whether key is stored in the tree rooted at root.
func Contains(r PageReader, root base.PageOffset, key base.Key) (bool, error) {
	off := root
	for depth := 0; depth <= MaxDepth; depth++ {
		node, err := readNode(r, off)
		if err != nil {
			return false, err
		}
		switch n := node.(type) {
		case *base.InternalNode:
			off = n.Children[FindChildIndex(n, key)]
		case *base.LeafNode:
			_, found := SearchLeaf(n, key)
			return found, nil
		}
	}
	return false, ErrTreeTooDeep
}
