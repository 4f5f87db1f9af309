package wal

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"idtree/internal/base"
)

// EntryType identifies a WAL record.
type EntryType uint8

// Record types
const (
	EntryPage   EntryType = 1 // full page after-image
	EntryHeader EntryType = 2 // header fields
	entryCommit EntryType = 3 // batch terminator
)

// RecordHeaderSize Record format: [Type:1][Pad:3][Offset:4][Batch:8][DataLen:4][Data:N][Checksum:8]
const (
	RecordHeaderSize = 1 + 3 + 4 + 8 + 4
	checksumSize     = 8
	headerDataSize   = 12
)

var (
	errTorn         = errors.New("torn record")
	errChecksum     = errors.New("record checksum mismatch")
	errUnknownEntry = errors.New("unknown record type")
)

// Entry is one mutation produced by a tree operation.
type Entry struct {
	Type   EntryType
	Offset base.PageOffset // EntryPage only
	Page   *base.Page      // EntryPage only
	Header base.Header     // EntryHeader only
}

// PageEntry logs the after-image of the page at off.
func PageEntry(off base.PageOffset, page *base.Page) Entry {
	return Entry{Type: EntryPage, Offset: off, Page: page}
}

// HeaderEntry logs a new header.
func HeaderEntry(h base.Header) Entry {
	return Entry{Type: EntryHeader, Header: h}
}

func (e Entry) String() string {
	switch e.Type {
	case EntryPage:
		return fmt.Sprintf("page(%d)", e.Offset)
	case EntryHeader:
		return fmt.Sprintf("header(root=%d next=%d free=%d)", e.Header.Root, e.Header.NextPageOffset, e.Header.FreeStackTop)
	default:
		return fmt.Sprintf("entry(%d)", e.Type)
	}
}

// recordSize returns the encoded length of e.
func (e Entry) recordSize() int {
	switch e.Type {
	case EntryPage:
		return RecordHeaderSize + base.PageSize + checksumSize
	case EntryHeader:
		return RecordHeaderSize + headerDataSize + checksumSize
	default:
		return RecordHeaderSize + checksumSize
	}
}

// appendRecord encodes e as part of batch onto buf.
func appendRecord(buf []byte, e Entry, batch uint64) []byte {
	start := len(buf)

	var hdr [RecordHeaderSize]byte
	hdr[0] = byte(e.Type)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(e.Offset))
	binary.LittleEndian.PutUint64(hdr[8:16], batch)

	switch e.Type {
	case EntryPage:
		binary.LittleEndian.PutUint32(hdr[16:20], base.PageSize)
		buf = append(buf, hdr[:]...)
		buf = append(buf, e.Page.Data[:]...)
	case EntryHeader:
		binary.LittleEndian.PutUint32(hdr[16:20], headerDataSize)
		buf = append(buf, hdr[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Header.FreeStackTop))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Header.Root))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Header.NextPageOffset))
	default:
		buf = append(buf, hdr[:]...)
	}

	return binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(buf[start:]))
}

// decodeRecord parses one record from hdr and body, where body holds the
// data followed by the checksum.
func decodeRecord(hdr, body []byte) (Entry, uint64, error) {
	data := body[:len(body)-checksumSize]
	want := binary.LittleEndian.Uint64(body[len(body)-checksumSize:])

	d := xxhash.New()
	_, _ = d.Write(hdr)
	_, _ = d.Write(data)
	if d.Sum64() != want {
		return Entry{}, 0, errChecksum
	}

	e := Entry{
		Type:   EntryType(hdr[0]),
		Offset: base.PageOffset(binary.LittleEndian.Uint32(hdr[4:8])),
	}
	batch := binary.LittleEndian.Uint64(hdr[8:16])

	switch e.Type {
	case EntryPage:
		e.Page = &base.Page{}
		copy(e.Page.Data[:], data)
	case EntryHeader:
		e.Header = base.Header{
			FreeStackTop:   base.PageOffset(binary.LittleEndian.Uint32(data[0:4])),
			Root:           base.PageOffset(binary.LittleEndian.Uint32(data[4:8])),
			NextPageOffset: base.PageOffset(binary.LittleEndian.Uint32(data[8:12])),
		}
	}
	return e, batch, nil
}

// dataLen validates the declared payload length for a record type.
func dataLen(typ EntryType, declared uint32) (int, error) {
	var want uint32
	switch typ {
	case EntryPage:
		want = base.PageSize
	case EntryHeader:
		want = headerDataSize
	case entryCommit:
		want = 0
	default:
		return 0, fmt.Errorf("%w: %d", errUnknownEntry, typ)
	}
	if declared != want {
		return 0, fmt.Errorf("%w: type %d declares %d bytes", errTorn, typ, declared)
	}
	return int(want), nil
}
