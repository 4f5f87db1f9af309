package algo

import (
	"idtree/internal/base"
)

// iterFrame is one internal node on the iterator's path with the index of
// the next child to visit.
type iterFrame struct {
	node *base.InternalNode
	next int
}

// Iterator walks every key of a tree in ascending order. Leaves carry no
// sibling pointers, so it keeps an explicit stack of internal-node
// positions and climbs back up once a leaf is exhausted.
type Iterator struct {
	reader PageReader
	root   base.PageOffset

	stack []iterFrame
	leaf  *base.LeafNode
	idx   int
	key   base.Key
	err   error

	started bool
	done    bool
}

// NewIterator returns an iterator positioned before the first key.
func NewIterator(r PageReader, root base.PageOffset) *Iterator {
	return &Iterator{reader: r, root: root}
}

// Rewind positions the iterator before the first key again.
func (it *Iterator) Rewind() {
	*it = Iterator{reader: it.reader, root: it.root, stack: it.stack[:0]}
}

// Next advances to the next key and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}

	if !it.started {
		it.started = true
		if !it.descend(it.root) {
			return false
		}
	} else {
		it.idx++
	}

	for it.idx >= int(it.leaf.Count) {
		if !it.advance() {
			return false
		}
	}

	it.key = it.leaf.Keys[it.idx]
	return true
}

// Key returns the current key. Only valid after Next returned true.
func (it *Iterator) Key() base.Key {
	return it.key
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// advance moves to the leftmost leaf of the next unvisited subtree.
func (it *Iterator) advance() bool {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.next <= int(top.node.Count) {
			child := top.node.Children[top.next]
			top.next++
			return it.descend(child)
		}
		it.stack = it.stack[:len(it.stack)-1]
	}

	it.done = true
	it.leaf = nil
	return false
}

// descend follows first children from off down to a leaf.
func (it *Iterator) descend(off base.PageOffset) bool {
	for {
		if len(it.stack) > MaxDepth {
			return it.fail(ErrTreeTooDeep)
		}
		node, err := readNode(it.reader, off)
		if err != nil {
			return it.fail(err)
		}
		switch n := node.(type) {
		case *base.InternalNode:
			it.stack = append(it.stack, iterFrame{node: n, next: 1})
			off = n.Children[0]
		case *base.LeafNode:
			it.leaf = n
			it.idx = 0
			return true
		}
	}
}

func (it *Iterator) fail(err error) bool {
	it.err = err
	it.done = true
	it.leaf = nil
	return false
}
