package base

import "fmt"

// FreePageStackNode is one page of the free page stack. Nodes form a singly
// linked list through Next; the header points at the top node.
type FreePageStackNode struct {
	Next    PageOffset
	Length  uint32
	Offsets [FreeStackCapacity]PageOffset
}

// IsEmpty reports whether the node holds no offsets.
func (n *FreePageStackNode) IsEmpty() bool {
	return n.Length == 0
}

// IsFull reports whether Push would overflow.
func (n *FreePageStackNode) IsFull() bool {
	return n.Length == FreeStackCapacity
}

// Pop removes and returns the most recently pushed offset.
// Panics if the node is empty or the stored offset is null.
func (n *FreePageStackNode) Pop() PageOffset {
	if n.Length == 0 {
		panic("free page stack: pop from empty node")
	}
	n.Length--
	off := n.Offsets[n.Length]
	if off.IsNull() {
		panic("free page stack: popped null offset")
	}
	return off
}

// Push records a reusable offset. Panics on null or when full.
func (n *FreePageStackNode) Push(off PageOffset) {
	if off.IsNull() {
		panic("free page stack: push null offset")
	}
	if n.IsFull() {
		panic("free page stack: push to full node")
	}
	n.Offsets[n.Length] = off
	n.Length++
}

// Encode writes the node into p.
func (n *FreePageStackNode) Encode(p *Page) {
	*p = Page{}
	p.writeU32(0, uint32(n.Next))
	p.writeU32(4, n.Length)
	for i := 0; i < int(n.Length); i++ {
		p.writeU32(freeStackOffsetsOffset+i*offsetSize, uint32(n.Offsets[i]))
	}
}

// DecodeFreePageStack decodes a free stack page.
func DecodeFreePageStack(p *Page) (*FreePageStackNode, error) {
	n := &FreePageStackNode{
		Next:   PageOffset(p.readU32(0)),
		Length: p.readU32(4),
	}
	if n.Length > FreeStackCapacity {
		return nil, fmt.Errorf("%w: free stack length %d", ErrCorruptPage, n.Length)
	}
	for i := 0; i < int(n.Length); i++ {
		n.Offsets[i] = PageOffset(p.readU32(freeStackOffsetsOffset + i*offsetSize))
	}
	return n, nil
}
