package engine

import "testing"

func TestFileHeader_RoundTrip(t *testing.T) {
	h := newFileHeader()
	h.numPages = 10
	h.nextPageID = 11
	h.freeList = []PageID{3, 5, 7}

	buf := h.marshal()
	if len(buf) != PageSize {
		t.Fatalf("marshaled header is %d bytes, want %d", len(buf), PageSize)
	}

	got, err := unmarshalFileHeader(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.numPages != 10 || got.nextPageID != 11 {
		t.Fatalf("got %+v", got)
	}
	if len(got.freeList) != 3 || got.freeList[2] != 7 {
		t.Fatalf("free list mismatch: %v", got.freeList)
	}
}

func TestFileHeader_BadMagic(t *testing.T) {
	buf := make([]byte, PageSize)
	if _, err := unmarshalFileHeader(buf); err == nil {
		t.Fatalf("expected error for all-zero buffer (bad magic)")
	}
}

func TestFileHeader_ChecksumMismatch(t *testing.T) {
	h := newFileHeader()
	buf := h.marshal()
	buf[fhOffNumPages] ^= 0xFF // corrupt a field covered by the checksum

	if _, err := unmarshalFileHeader(buf); err == nil {
		t.Fatalf("expected checksum mismatch error")
	}
}

func TestFileHeader_FreeListCapEnforced(t *testing.T) {
	h := newFileHeader()
	for i := 0; i < MaxInlineFreeList+50; i++ {
		h.freeList = append(h.freeList, PageID(i+1))
	}
	buf := h.marshal() // silently caps at MaxInlineFreeList

	got, err := unmarshalFileHeader(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.freeList) != MaxInlineFreeList {
		t.Fatalf("free list length = %d, want %d", len(got.freeList), MaxInlineFreeList)
	}
}
