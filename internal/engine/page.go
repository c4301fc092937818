package engine

import "encoding/binary"

// PageSize is the fixed size of every page in the database file, including
// its header. Page 0 is reserved for the file header (see fileheader.go).
const PageSize = 4096

// PageHeaderSize is the size, in bytes, of the fixed page header that
// precedes every page's data region.
const PageHeaderSize = 32

// DataSize is the number of bytes available to a page's data region after
// its header.
const DataSize = PageSize - PageHeaderSize

// PageID identifies a page within the database file. 0 is reserved as the
// invalid/null id and also denotes the file header page.
type PageID uint32

// InvalidPageID is the reserved null page id.
const InvalidPageID PageID = 0

// LSN is a log sequence number. 0 means "none."
type LSN uint64

// TxnID identifies a transaction. 0 means "none."
type TxnID uint64

// NodeKind discriminates an initialized page's role.
type NodeKind uint8

const (
	NodeUninitialized NodeKind = iota
	NodeLeaf
	NodeInternal
)

func (k NodeKind) String() string {
	switch k {
	case NodeLeaf:
		return "leaf"
	case NodeInternal:
		return "internal"
	default:
		return "uninitialized"
	}
}

// Page header field offsets within the 32-byte header.
const (
	hdrOffPageID       = 0
	hdrOffParentPageID = 4
	hdrOffPageLSN      = 8
	hdrOffChecksum     = 12
	hdrOffNumKeys      = 16
	hdrOffNodeKind     = 18
	// bytes [19:32) are reserved
)

// Page is a single in-memory 4096-byte page buffer, header plus data.
type Page struct {
	buf [PageSize]byte
}

// NewPage returns a zero-initialized page stamped with id and kind
// uninitialized; callers call InitLeaf/InitInternal to turn it into a node.
func NewPage(id PageID) *Page {
	p := &Page{}
	p.SetID(id)
	p.SetNodeKind(NodeUninitialized)
	return p
}

// WrapPage interprets an existing PageSize-byte buffer as a Page, copying
// it into a fresh owned buffer.
func WrapPage(data []byte) *Page {
	p := &Page{}
	copy(p.buf[:], data)
	return p
}

func (p *Page) Bytes() []byte { return p.buf[:] }

func (p *Page) ID() PageID {
	return PageID(binary.LittleEndian.Uint32(p.buf[hdrOffPageID:]))
}

func (p *Page) SetID(id PageID) {
	binary.LittleEndian.PutUint32(p.buf[hdrOffPageID:], uint32(id))
}

func (p *Page) ParentPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(p.buf[hdrOffParentPageID:]))
}

func (p *Page) SetParentPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.buf[hdrOffParentPageID:], uint32(id))
}

// PageLSN is stored on disk as a 32-bit quantity (see the bit-exact layout
// in SPEC_FULL.md §6); the logical LSN type is 64-bit, so the low 32 bits
// are what round-trips through the page header. Recovery (recovery.go)
// replays logical records by key and does not read page_lsn.
func (p *Page) PageLSN() LSN {
	return LSN(binary.LittleEndian.Uint32(p.buf[hdrOffPageLSN:]))
}

func (p *Page) SetPageLSN(lsn LSN) {
	binary.LittleEndian.PutUint32(p.buf[hdrOffPageLSN:], uint32(lsn))
}

func (p *Page) Checksum() uint32 {
	return binary.LittleEndian.Uint32(p.buf[hdrOffChecksum:])
}

func (p *Page) setChecksum(c uint32) {
	binary.LittleEndian.PutUint32(p.buf[hdrOffChecksum:], c)
}

func (p *Page) NumKeys() uint16 {
	return binary.LittleEndian.Uint16(p.buf[hdrOffNumKeys:])
}

func (p *Page) SetNumKeys(n uint16) {
	binary.LittleEndian.PutUint16(p.buf[hdrOffNumKeys:], n)
}

func (p *Page) NodeKind() NodeKind {
	return NodeKind(p.buf[hdrOffNodeKind])
}

func (p *Page) SetNodeKind(k NodeKind) {
	p.buf[hdrOffNodeKind] = byte(k)
}

// Data returns the 4064-byte data region following the header.
func (p *Page) Data() []byte {
	return p.buf[PageHeaderSize:]
}

// RecomputeChecksum computes CRC32 over the data region and stores it in
// the header. Called before every write (flush or eviction), never lazily
// on read.
func (p *Page) RecomputeChecksum() {
	p.setChecksum(checksumBytes(p.Data()))
}

// VerifyChecksum reports whether the stored checksum matches the data
// region's actual CRC32.
func (p *Page) VerifyChecksum() bool {
	return p.Checksum() == checksumBytes(p.Data())
}

// Reset zeroes the page and re-stamps its id, used when a page transitions
// node kind via a full reset (spec invariant: kind only changes
// uninitialized -> leaf|internal, except through reset).
func (p *Page) Reset(id PageID) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.SetID(id)
}
