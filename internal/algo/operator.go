package algo

import (
	"fmt"
	"math"

	"idtree/internal/base"
	"idtree/internal/wal"
)

// PageUpdate is a page written by an operation.
type PageUpdate struct {
	Offset base.PageOffset
	Page   *base.Page
}

// Result is the net effect of one operation.
type Result struct {
	Entries []wal.Entry  // every page and header mutation, in order
	Header  *base.Header // nil if the header did not change
	Pages   []PageUpdate // new or modified pages

	Duplicate      bool // no key was added, nothing changed
	Inserted       int
	Duplicates     int
	LeafSplits     int
	InternalSplits int
}

// Operator computes the in-memory effect of a mutation against a header
// snapshot and a page source. It never writes anything itself; the caller
// logs Result.Entries and then adopts the header and pages. An Operator is
// single-use.
type Operator struct {
	orig   base.Header
	header base.Header
	reader PageReader

	touched map[base.PageOffset]*base.Page
	order   []base.PageOffset
}

// NewOperator returns an operator over header and r.
func NewOperator(header base.Header, r PageReader) *Operator {
	return &Operator{
		orig:    header,
		header:  header,
		reader:  r,
		touched: make(map[base.PageOffset]*base.Page),
	}
}

type pathFrame struct {
	off  base.PageOffset
	node *base.InternalNode
}

// Insert descends from the root, inserts key into its leaf and splits
// bottom-up as needed, growing a new root when the old root splits.
// Inserting a key that is already present yields an empty result.
func (o *Operator) Insert(key base.Key) (*Result, error) {
	return o.InsertBatch([]base.Key{key})
}

// InsertBatch inserts every key and folds the effects into one result, so
// the whole batch can be logged atomically. Pages touched by several keys
// appear once, with their final image.
func (o *Operator) InsertBatch(keys []base.Key) (*Result, error) {
	res := &Result{}
	for _, key := range keys {
		if err := o.insert(key, res); err != nil {
			return nil, err
		}
	}
	if res.Inserted == 0 {
		res.Duplicate = true
		return res, nil
	}
	return o.finish(res), nil
}

func (o *Operator) insert(key base.Key, res *Result) error {
	var path []pathFrame
	off := o.header.Root
	var leaf *base.LeafNode
	for leaf == nil {
		if len(path) > MaxDepth {
			return ErrTreeTooDeep
		}
		node, err := o.node(off)
		if err != nil {
			return err
		}
		switch n := node.(type) {
		case *base.InternalNode:
			path = append(path, pathFrame{off: off, node: n})
			off = n.Children[FindChildIndex(n, key)]
		case *base.LeafNode:
			leaf = n
		}
	}

	if _, found := SearchLeaf(leaf, key); found {
		res.Duplicates++
		return nil
	}
	res.Inserted++

	leafOff := off
	split := leaf.Insert(key)
	o.write(leafOff, leaf)
	if split == nil {
		return nil
	}

	rightOff, err := o.allocate()
	if err != nil {
		return err
	}
	o.write(rightOff, split.Right)
	res.LeafSplits++

	left, sep, right := leafOff, split.Separator, rightOff
	for i := len(path) - 1; i >= 0; i-- {
		f := path[i]
		isplit := f.node.Insert(sep, right)
		o.write(f.off, f.node)
		if isplit == nil {
			return nil
		}

		newOff, err := o.allocate()
		if err != nil {
			return err
		}
		o.write(newOff, isplit.Right)
		res.InternalSplits++

		left, sep, right = f.off, isplit.Separator, newOff
	}

	rootOff, err := o.allocate()
	if err != nil {
		return err
	}
	o.write(rootOff, base.NewRoot(sep, left, right))
	o.header.Root = rootOff
	return nil
}

// allocate hands out a page offset, preferring the free page stack. An
// exhausted stack page is itself recycled.
func (o *Operator) allocate() (base.PageOffset, error) {
	if top := o.header.FreeStackTop; !top.IsNull() {
		page, err := o.page(top)
		if err != nil {
			return 0, err
		}
		stack, err := base.DecodeFreePageStack(page)
		if err != nil {
			return 0, fmt.Errorf("free stack page %d: %w", top, err)
		}
		if !stack.IsEmpty() {
			off := stack.Pop()
			p := &base.Page{}
			stack.Encode(p)
			o.writePage(top, p)
			return off, nil
		}
		o.header.FreeStackTop = stack.Next
		return top, nil
	}

	// The last offset stays unused so NextPageOffset never wraps to zero.
	off := o.header.NextPageOffset
	if off.IsNull() || off == math.MaxUint32 {
		return 0, ErrFileFull
	}
	o.header.NextPageOffset++
	return off, nil
}

func (o *Operator) page(off base.PageOffset) (*base.Page, error) {
	if p, ok := o.touched[off]; ok {
		return p, nil
	}
	p, err := o.reader.ReadPage(off)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", off, err)
	}
	return p, nil
}

func (o *Operator) node(off base.PageOffset) (base.Node, error) {
	if off.IsNull() {
		return nil, fmt.Errorf("%w: null child pointer", ErrTreeCorrupt)
	}
	p, err := o.page(off)
	if err != nil {
		return nil, err
	}
	n, err := base.DecodeNode(p)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", off, err)
	}
	return n, nil
}

func (o *Operator) write(off base.PageOffset, n base.Node) {
	o.writePage(off, base.NodePage(n))
}

func (o *Operator) writePage(off base.PageOffset, p *base.Page) {
	if _, ok := o.touched[off]; !ok {
		o.order = append(o.order, off)
	}
	o.touched[off] = p
}

func (o *Operator) finish(res *Result) *Result {
	res.Pages = make([]PageUpdate, 0, len(o.order))
	res.Entries = make([]wal.Entry, 0, len(o.order)+1)
	for _, off := range o.order {
		p := o.touched[off]
		res.Pages = append(res.Pages, PageUpdate{Offset: off, Page: p})
		res.Entries = append(res.Entries, wal.PageEntry(off, p))
	}
	if o.header != o.orig {
		h := o.header
		res.Header = &h
		res.Entries = append(res.Entries, wal.HeaderEntry(h))
	}
	return res
}
