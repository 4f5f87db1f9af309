package base

import "fmt"

// Node is a decoded tree node: either *InternalNode or *LeafNode.
type Node interface {
	Tag() uint8
	Encode(p *Page)
	NumKeys() int
}

var (
	_ Node = (*InternalNode)(nil)
	_ Node = (*LeafNode)(nil)
)

// DecodeNode classifies p by its tag byte and decodes it.
func DecodeNode(p *Page) (Node, error) {
	switch p.Tag() {
	case InternalNodeTag:
		return DecodeInternal(p)
	case LeafNodeTag:
		return DecodeLeaf(p)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, p.Tag())
	}
}

// NodePage encodes n into a fresh page.
func NodePage(n Node) *Page {
	p := &Page{}
	n.Encode(p)
	return p
}

// LeafNode holds up to LeafCapacity sorted keys. Slots at or beyond Count
// are meaningless.
type LeafNode struct {
	Count uint32
	Keys  [LeafCapacity]Key
}

// LeafSplit is the outcome of inserting into a full leaf.
type LeafSplit struct {
	Right     *LeafNode
	Separator Key // last key kept in the left node
}

func (n *LeafNode) Tag() uint8 { return LeafNodeTag }

func (n *LeafNode) NumKeys() int { return int(n.Count) }

// Used returns the populated prefix of Keys.
func (n *LeafNode) Used() []Key {
	return n.Keys[:n.Count]
}

// Encode writes the leaf into p. Unused key slots are zeroed.
func (n *LeafNode) Encode(p *Page) {
	*p = Page{}
	p.Data[0] = LeafNodeTag
	p.writeU32(4, n.Count)
	for i := 0; i < int(n.Count); i++ {
		p.writeKey(leafKeysOffset+i*keySize, n.Keys[i])
	}
}

// DecodeLeaf decodes a leaf page.
func DecodeLeaf(p *Page) (*LeafNode, error) {
	if p.Tag() != LeafNodeTag {
		return nil, fmt.Errorf("%w: expected leaf, got tag %d", ErrUnknownTag, p.Tag())
	}
	n := &LeafNode{Count: p.readU32(4)}
	if n.Count > LeafCapacity {
		return nil, fmt.Errorf("%w: leaf id_count %d", ErrCorruptPage, n.Count)
	}
	for i := 0; i < int(n.Count); i++ {
		n.Keys[i] = p.readKey(leafKeysOffset + i*keySize)
	}
	return n, nil
}

// Insert places key in sorted position. No uniqueness check is done here.
// A nil result means the key fit in place; otherwise the node kept the lower
// half and the returned split carries the new right sibling.
func (n *LeafNode) Insert(key Key) *LeafSplit {
	count := int(n.Count)
	idx := count
	for i := 0; i < count; i++ {
		if n.Keys[i].Compare(key) > 0 {
			idx = i
			break
		}
	}

	if count < LeafCapacity {
		copy(n.Keys[idx+1:count+1], n.Keys[idx:count])
		n.Keys[idx] = key
		n.Count++
		return nil
	}

	var buf [LeafCapacity + 1]Key
	copy(buf[:idx], n.Keys[:idx])
	buf[idx] = key
	copy(buf[idx+1:], n.Keys[idx:count])

	const floor = (LeafCapacity + 1) / 2
	const ceil = LeafCapacity + 1 - floor

	right := &LeafNode{Count: floor}
	copy(right.Keys[:floor], buf[ceil:])
	copy(n.Keys[:ceil], buf[:ceil])
	n.Count = ceil

	return &LeafSplit{Right: right, Separator: buf[ceil-1]}
}

// InternalNode routes keys to KeyCount+1 children.
// Child i holds keys <= Keys[i]; the last child holds keys > Keys[Count-1].
type InternalNode struct {
	Count    uint32
	Keys     [InternalKeyCapacity]Key
	Children [InternalChildCapacity]PageOffset
}

// InternalSplit is the outcome of inserting into a full internal node.
type InternalSplit struct {
	Right *InternalNode
	// Separator is the middle key of the merged buffer. It is kept by
	// neither half and must be pushed into the parent.
	Separator Key
}

// NewRoot builds an internal node with a single separator.
func NewRoot(sep Key, left, right PageOffset) *InternalNode {
	n := &InternalNode{Count: 1}
	n.Keys[0] = sep
	n.Children[0] = left
	n.Children[1] = right
	return n
}

func (n *InternalNode) Tag() uint8 { return InternalNodeTag }

func (n *InternalNode) NumKeys() int { return int(n.Count) }

// UsedKeys returns the populated prefix of Keys.
func (n *InternalNode) UsedKeys() []Key {
	return n.Keys[:n.Count]
}

// UsedChildren returns the populated prefix of Children.
func (n *InternalNode) UsedChildren() []PageOffset {
	return n.Children[:n.Count+1]
}

// Encode writes the node into p. Unused slots are zeroed.
func (n *InternalNode) Encode(p *Page) {
	*p = Page{}
	p.Data[0] = InternalNodeTag
	p.writeU32(4, n.Count)
	for i := 0; i < int(n.Count); i++ {
		p.writeKey(internalKeysOffset+i*keySize, n.Keys[i])
	}
	for i := 0; i <= int(n.Count); i++ {
		p.writeU32(internalChildrenOffset+i*offsetSize, uint32(n.Children[i]))
	}
}

// DecodeInternal decodes an internal node page.
func DecodeInternal(p *Page) (*InternalNode, error) {
	if p.Tag() != InternalNodeTag {
		return nil, fmt.Errorf("%w: expected internal, got tag %d", ErrUnknownTag, p.Tag())
	}
	n := &InternalNode{Count: p.readU32(4)}
	if n.Count > InternalKeyCapacity {
		return nil, fmt.Errorf("%w: internal key_count %d", ErrCorruptPage, n.Count)
	}
	for i := 0; i < int(n.Count); i++ {
		n.Keys[i] = p.readKey(internalKeysOffset + i*keySize)
	}
	for i := 0; i <= int(n.Count); i++ {
		n.Children[i] = PageOffset(p.readU32(internalChildrenOffset + i*offsetSize))
		if n.Children[i].IsNull() {
			return nil, fmt.Errorf("%w: internal child %d is null", ErrCorruptPage, i)
		}
	}
	return n, nil
}

// Insert adds key with child as its right-hand neighbour. A nil result
// means the node absorbed it in place.
func (n *InternalNode) Insert(key Key, child PageOffset) *InternalSplit {
	count := int(n.Count)
	idx := count
	for i := 0; i < count; i++ {
		if n.Keys[i].Compare(key) > 0 {
			idx = i
			break
		}
	}

	if count < InternalKeyCapacity {
		copy(n.Keys[idx+1:count+1], n.Keys[idx:count])
		n.Keys[idx] = key
		copy(n.Children[idx+2:count+2], n.Children[idx+1:count+1])
		n.Children[idx+1] = child
		n.Count++
		return nil
	}

	var keys [InternalKeyCapacity + 1]Key
	var children [InternalChildCapacity + 1]PageOffset

	copy(keys[:idx], n.Keys[:idx])
	keys[idx] = key
	copy(keys[idx+1:], n.Keys[idx:count])

	copy(children[:idx+1], n.Children[:idx+1])
	children[idx+1] = child
	copy(children[idx+2:], n.Children[idx+1:count+1])

	const floor = (InternalKeyCapacity + 1) / 2
	const ceil = InternalKeyCapacity + 1 - floor

	right := &InternalNode{Count: floor - 1}
	copy(right.Keys[:floor-1], keys[ceil+1:])
	copy(right.Children[:floor], children[ceil+1:])

	copy(n.Keys[:ceil], keys[:ceil])
	copy(n.Children[:ceil+1], children[:ceil+1])
	n.Count = ceil

	return &InternalSplit{Right: right, Separator: keys[ceil]}
}
