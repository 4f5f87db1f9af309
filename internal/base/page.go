package base

import (
	"encoding/binary"
)

const (
	PageSize = 4096

	// Node tags stored in the first byte of every tree node page.
	InternalNodeTag uint8 = 0
	LeafNodeTag     uint8 = 1

	nodeHeaderSize = 8 // Tag(1) + Padding(3) + Count(4)
	keySize        = 16
	offsetSize     = 4

	// LeafCapacity is the max number of keys held by a leaf.
	LeafCapacity = 255

	// InternalKeyCapacity is the max number of separator keys in an internal
	// node; InternalChildCapacity the max number of child offsets.
	InternalKeyCapacity   = 203
	InternalChildCapacity = InternalKeyCapacity + 1

	// FreeStackCapacity is the max number of offsets held by one free stack page.
	FreeStackCapacity = 1022

	leafKeysOffset          = nodeHeaderSize
	internalKeysOffset      = nodeHeaderSize
	internalChildrenOffset  = internalKeysOffset + InternalKeyCapacity*keySize
	freeStackOffsetsOffset  = 8
	internalChildrenEnd     = internalChildrenOffset + InternalChildCapacity*offsetSize
	leafKeysEnd             = leafKeysOffset + LeafCapacity*keySize
	freeStackOffsetsEnd     = freeStackOffsetsOffset + FreeStackCapacity*offsetSize
	headerFreeStackTopField = 0
	headerRootField         = 4
	headerNextPageField     = 8
	headerSize              = 12
)

// PageOffset addresses a page in the data file. File position is
// offset * PageSize. Zero is both NULL and the header's fixed location.
type PageOffset uint32

// NullOffset is the "no page" value.
const NullOffset PageOffset = 0

// IsNull reports whether the offset is the null page.
func (o PageOffset) IsNull() bool {
	return o == NullOffset
}

// Position returns the byte position of the page in the data file.
func (o PageOffset) Position() int64 {
	return int64(o) * PageSize
}

// Page is raw disk page (4096 bytes)
//
// HEADER PAGE LAYOUT (offset 0 only):
// ┌─────────────────────────────────────────────────────────────────────┐
// │ FreeStackTop u32 | Root u32 | NextPage u32 | zero padding           │
// └─────────────────────────────────────────────────────────────────────┘
//
// INTERNAL NODE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Tag=0 u8 | Padding 3 | KeyCount u32                                 │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Keys: 203 × u128 (ascending, KeyCount used)                         │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Children: 204 × u32 (KeyCount+1 used)                               │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Padding (24 bytes)                                                  │
// └─────────────────────────────────────────────────────────────────────┘
//
// LEAF NODE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Tag=1 u8 | Padding 3 | IDCount u32                                  │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Keys: 255 × u128 (ascending, IDCount used)                          │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Padding (8 bytes)                                                   │
// └─────────────────────────────────────────────────────────────────────┘
//
// FREE PAGE STACK LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Next u32 | Length u32 | Offsets: 1022 × u32                         │
// └─────────────────────────────────────────────────────────────────────┘
type Page struct {
	Data [PageSize]byte
}

// Tag returns the node discriminant stored in the first byte.
func (p *Page) Tag() uint8 {
	return p.Data[0]
}

// Clone returns a copy of the page.
func (p *Page) Clone() *Page {
	c := *p
	return &c
}

func (p *Page) readU32(off int) uint32 {
	return binary.LittleEndian.Uint32(p.Data[off : off+4])
}

func (p *Page) writeU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(p.Data[off:off+4], v)
}

func (p *Page) readKey(off int) Key {
	return Key{
		Lo: binary.LittleEndian.Uint64(p.Data[off : off+8]),
		Hi: binary.LittleEndian.Uint64(p.Data[off+8 : off+16]),
	}
}

func (p *Page) writeKey(off int, k Key) {
	binary.LittleEndian.PutUint64(p.Data[off:off+8], k.Lo)
	binary.LittleEndian.PutUint64(p.Data[off+8:off+16], k.Hi)
}

// Header is the singleton page at offset 0.
type Header struct {
	FreeStackTop   PageOffset // head of the free page stack, 0 if none
	Root           PageOffset // root node
	NextPageOffset PageOffset // next never-allocated page
}

// Encode writes the header into p, zeroing the rest of the page.
func (h Header) Encode(p *Page) {
	*p = Page{}
	p.writeU32(headerFreeStackTopField, uint32(h.FreeStackTop))
	p.writeU32(headerRootField, uint32(h.Root))
	p.writeU32(headerNextPageField, uint32(h.NextPageOffset))
}

// Page returns the header encoded into a fresh page.
func (h Header) Page() *Page {
	p := &Page{}
	h.Encode(p)
	return p
}

// DecodeHeader reads the header fields from p.
func DecodeHeader(p *Page) Header {
	return Header{
		FreeStackTop:   PageOffset(p.readU32(headerFreeStackTopField)),
		Root:           PageOffset(p.readU32(headerRootField)),
		NextPageOffset: PageOffset(p.readU32(headerNextPageField)),
	}
}

// Validate checks that the header describes an initialised tree.
func (h Header) Validate() error {
	if h.Root.IsNull() {
		return ErrNullRoot
	}
	if h.NextPageOffset <= h.Root || h.NextPageOffset <= h.FreeStackTop {
		return ErrInvalidHeader
	}
	return nil
}
