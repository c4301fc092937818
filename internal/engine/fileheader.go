package engine

import (
	"encoding/binary"
	"fmt"
)

// fileMagic is the 8-byte magic stamped at the start of page 0.
var fileMagic = [8]byte{'D', 'O', 'C', 'S', 'T', 'O', 'R', 'E'}

const fileHeaderVersion = 1

// MaxInlineFreeList is the number of page ids that fit inline in the file
// header: (PageSize - 28) / 4 = 1017. Deallocations beyond this cap are
// silently dropped, per the documented simplification.
const MaxInlineFreeList = (PageSize - 28) / 4

const (
	fhOffMagic      = 0
	fhOffVersion    = 8
	fhOffNumPages   = 12
	fhOffNextPageID = 16
	fhOffFreeCount  = 20
	fhOffChecksum   = 24
	fhOffFreeList   = 28
	fhChecksumLen   = 24 // CRC32 covers bytes [0:24)
)

// fileHeader is the in-memory form of page 0.
type fileHeader struct {
	version     uint32
	numPages    uint32
	nextPageID  PageID
	freeList    []PageID // LIFO: freeList[len-1] is the next id to reuse
}

func newFileHeader() *fileHeader {
	return &fileHeader{
		version:    fileHeaderVersion,
		numPages:   1, // page 0 itself
		nextPageID: 1,
	}
}

// marshal renders the header into a fresh PageSize-byte buffer.
func (h *fileHeader) marshal() []byte {
	buf := make([]byte, PageSize)
	copy(buf[fhOffMagic:], fileMagic[:])
	binary.LittleEndian.PutUint32(buf[fhOffVersion:], h.version)
	binary.LittleEndian.PutUint32(buf[fhOffNumPages:], h.numPages)
	binary.LittleEndian.PutUint32(buf[fhOffNextPageID:], uint32(h.nextPageID))

	n := len(h.freeList)
	if n > MaxInlineFreeList {
		n = MaxInlineFreeList // excess already dropped by DeallocatePage
	}
	binary.LittleEndian.PutUint32(buf[fhOffFreeCount:], uint32(n))

	off := fhOffFreeList
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[off:], uint32(h.freeList[i]))
		off += 4
	}

	crc := checksumBytes(buf[:fhChecksumLen])
	binary.LittleEndian.PutUint32(buf[fhOffChecksum:], crc)
	return buf
}

// unmarshalFileHeader parses and validates page 0.
func unmarshalFileHeader(buf []byte) (*fileHeader, error) {
	if len(buf) < PageSize {
		return nil, fmt.Errorf("file header: short buffer (%d bytes)", len(buf))
	}
	if string(buf[fhOffMagic:fhOffMagic+8]) != string(fileMagic[:]) {
		return nil, fmt.Errorf("file header: bad magic")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[fhOffChecksum:])
	gotCRC := checksumBytes(buf[:fhChecksumLen])
	if wantCRC != gotCRC {
		return nil, fmt.Errorf("file header: checksum mismatch (want %08x got %08x)", wantCRC, gotCRC)
	}

	h := &fileHeader{
		version:    binary.LittleEndian.Uint32(buf[fhOffVersion:]),
		numPages:   binary.LittleEndian.Uint32(buf[fhOffNumPages:]),
		nextPageID: PageID(binary.LittleEndian.Uint32(buf[fhOffNextPageID:])),
	}
	if h.version != fileHeaderVersion {
		return nil, fmt.Errorf("file header: unsupported version %d", h.version)
	}
	freeCount := int(binary.LittleEndian.Uint32(buf[fhOffFreeCount:]))
	if freeCount > MaxInlineFreeList {
		return nil, fmt.Errorf("file header: free list count %d exceeds cap %d", freeCount, MaxInlineFreeList)
	}
	h.freeList = make([]PageID, freeCount)
	off := fhOffFreeList
	for i := 0; i < freeCount; i++ {
		h.freeList[i] = PageID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return h, nil
}
