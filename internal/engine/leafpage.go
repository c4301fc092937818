package engine

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Leaf page data-region layout (relative offsets within Page.Data()):
//
//	[0:4)   prevLeaf PageID
//	[4:8)   nextLeaf PageID
//	[8:10)  freeSpaceOffset uint16 (end of slot array, grows forward)
//	[10:12) dataOffset      uint16 (start of key/value heap, grows backward)
//	[12:..) slot array: 6 bytes each {dataOffset u16, keyLen u16, valLen u16}
//
// Slots are kept in ascending-key order by index; the heap holds
// key-then-value bytes for each live entry, growing back from DataSize.
const (
	leafSubHeaderSize = 12
	leafSlotSize      = 6

	leafOffPrev      = 0
	leafOffNext      = 4
	leafOffFreeSpace = 8
	leafOffDataOff   = 10
	leafOffSlots     = 12
)

// LeafPage is a view over a Page initialized as a B+Tree leaf node.
type LeafPage struct {
	p *Page
}

// InitLeaf resets p into an empty leaf page.
func InitLeaf(p *Page) LeafPage {
	p.SetNodeKind(NodeLeaf)
	p.SetNumKeys(0)
	d := p.Data()
	binary.LittleEndian.PutUint32(d[leafOffPrev:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(d[leafOffNext:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint16(d[leafOffFreeSpace:], leafOffSlots)
	binary.LittleEndian.PutUint16(d[leafOffDataOff:], DataSize)
	return LeafPage{p: p}
}

// WrapLeaf views an already-initialized leaf page.
func WrapLeaf(p *Page) LeafPage { return LeafPage{p: p} }

func (l LeafPage) PrevLeaf() PageID {
	return PageID(binary.LittleEndian.Uint32(l.p.Data()[leafOffPrev:]))
}
func (l LeafPage) SetPrevLeaf(id PageID) {
	binary.LittleEndian.PutUint32(l.p.Data()[leafOffPrev:], uint32(id))
}
func (l LeafPage) NextLeaf() PageID {
	return PageID(binary.LittleEndian.Uint32(l.p.Data()[leafOffNext:]))
}
func (l LeafPage) SetNextLeaf(id PageID) {
	binary.LittleEndian.PutUint32(l.p.Data()[leafOffNext:], uint32(id))
}

func (l LeafPage) freeSpaceOffset() int {
	return int(binary.LittleEndian.Uint16(l.p.Data()[leafOffFreeSpace:]))
}
func (l LeafPage) setFreeSpaceOffset(v int) {
	binary.LittleEndian.PutUint16(l.p.Data()[leafOffFreeSpace:], uint16(v))
}
func (l LeafPage) dataOffset() int {
	return int(binary.LittleEndian.Uint16(l.p.Data()[leafOffDataOff:]))
}
func (l LeafPage) setDataOffset(v int) {
	binary.LittleEndian.PutUint16(l.p.Data()[leafOffDataOff:], uint16(v))
}

// KeyCount is the number of live entries, mirrored in the page header.
func (l LeafPage) KeyCount() int { return int(l.p.NumKeys()) }

func (l LeafPage) slotAt(i int) (dataOff, keyLen, valLen int) {
	off := leafOffSlots + i*leafSlotSize
	d := l.p.Data()
	dataOff = int(binary.LittleEndian.Uint16(d[off:]))
	keyLen = int(binary.LittleEndian.Uint16(d[off+2:]))
	valLen = int(binary.LittleEndian.Uint16(d[off+4:]))
	return
}

func (l LeafPage) setSlotAt(i, dataOff, keyLen, valLen int) {
	off := leafOffSlots + i*leafSlotSize
	d := l.p.Data()
	binary.LittleEndian.PutUint16(d[off:], uint16(dataOff))
	binary.LittleEndian.PutUint16(d[off+2:], uint16(keyLen))
	binary.LittleEndian.PutUint16(d[off+4:], uint16(valLen))
}

// Key returns the key stored in slot i.
func (l LeafPage) Key(i int) []byte {
	off, klen, _ := l.slotAt(i)
	return append([]byte(nil), l.p.Data()[off:off+klen]...)
}

// Value returns the value stored in slot i.
func (l LeafPage) Value(i int) []byte {
	off, klen, vlen := l.slotAt(i)
	return append([]byte(nil), l.p.Data()[off+klen:off+klen+vlen]...)
}

// Find returns the slot index of key via binary search, and whether it was
// found exactly; if not found, idx is the insertion position.
func (l LeafPage) Find(key []byte) (idx int, found bool) {
	n := l.KeyCount()
	idx = sort.Search(n, func(i int) bool {
		return bytes.Compare(l.Key(i), key) >= 0
	})
	if idx < n && bytes.Equal(l.Key(idx), key) {
		return idx, true
	}
	return idx, false
}

// HasSpace reports whether an entry of the given key/value length fits
// without a split.
func (l LeafPage) HasSpace(klen, vlen int) bool {
	need := leafSlotSize + klen + vlen
	return need <= l.FreeSpace()
}

// FreeSpace returns the number of bytes available between the slot array
// and the heap.
func (l LeafPage) FreeSpace() int {
	return l.dataOffset() - l.freeSpaceOffset()
}

// Insert places key/value in sorted position. Returns false if key already
// exists or there is insufficient space.
func (l LeafPage) Insert(key, value []byte) bool {
	idx, found := l.Find(key)
	if found {
		return false
	}
	need := leafSlotSize + len(key) + len(value)
	if l.FreeSpace() < need {
		return false
	}

	newDataOff := l.dataOffset() - len(key) - len(value)
	d := l.p.Data()
	copy(d[newDataOff:], key)
	copy(d[newDataOff+len(key):], value)
	l.setDataOffset(newDataOff)

	n := l.KeyCount()
	// Shift slots [idx, n) forward by one to make room.
	for i := n; i > idx; i-- {
		off, klen, vlen := l.slotAt(i - 1)
		l.setSlotAt(i, off, klen, vlen)
	}
	l.setSlotAt(idx, newDataOff, len(key), len(value))
	l.setFreeSpaceOffset(l.freeSpaceOffset() + leafSlotSize)
	l.p.SetNumKeys(uint16(n + 1))
	return true
}

// Remove deletes the entry at idx, compacting the slot array. The heap
// bytes are left in place (reclaimed on the next Split/rebuild); this is a
// well-formed view since slot removal alone restores every other
// invariant.
func (l LeafPage) Remove(idx int) {
	n := l.KeyCount()
	if idx < 0 || idx >= n {
		return
	}
	for i := idx; i < n-1; i++ {
		off, klen, vlen := l.slotAt(i + 1)
		l.setSlotAt(i, off, klen, vlen)
	}
	l.setFreeSpaceOffset(l.freeSpaceOffset() - leafSlotSize)
	l.p.SetNumKeys(uint16(n - 1))
}

// UpdateInPlace rewrites the value at idx if it fits in the existing slot
// without requiring the heap to grow; returns false otherwise (caller must
// fall back to remove+insert).
func (l LeafPage) UpdateInPlace(idx int, newValue []byte) bool {
	off, klen, vlen := l.slotAt(idx)
	if len(newValue) == vlen {
		copy(l.p.Data()[off+klen:off+klen+vlen], newValue)
		return true
	}
	if len(newValue) < vlen {
		copy(l.p.Data()[off+klen:off+klen+len(newValue)], newValue)
		l.setSlotAt(idx, off, klen, len(newValue))
		return true
	}
	return false
}

// MinKey returns slot 0's key (spec invariant: leaf minimum == key at slot 0).
func (l LeafPage) MinKey() []byte {
	if l.KeyCount() == 0 {
		return nil
	}
	return l.Key(0)
}

// Entry is a materialized key/value pair, used for split and bulk scans.
type Entry struct {
	Key   []byte
	Value []byte
}

// GetAll returns every live entry in ascending key order.
func (l LeafPage) GetAll() []Entry {
	n := l.KeyCount()
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = Entry{Key: l.Key(i), Value: l.Value(i)}
	}
	return out
}

// Split redistributes every current entry in l plus pending (the insert
// that triggered the split) between l (kept as the left leaf) and right
// (a freshly initialized leaf page), rewires sibling pointers, and
// returns right's minimum key as the promoted separator.
func Split(l LeafPage, right LeafPage, pending Entry) []byte {
	all := append(l.GetAll(), pending)
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i].Key, all[j].Key) < 0 })
	mid := (len(all) + 1) / 2

	oldNext := l.NextLeaf()

	// Reset the left leaf and rewrite the first half.
	leftID := l.p.ID()
	leftParent := l.p.ParentPageID()
	l.p.Reset(leftID)
	l.p.SetParentPageID(leftParent)
	InitLeaf(l.p)
	for _, e := range all[:mid] {
		l.Insert(e.Key, e.Value)
	}

	rightID := right.p.ID()
	rightParent := right.p.ParentPageID()
	right.p.Reset(rightID)
	right.p.SetParentPageID(rightParent)
	InitLeaf(right.p)
	for _, e := range all[mid:] {
		right.Insert(e.Key, e.Value)
	}

	l.SetNextLeaf(right.p.ID())
	right.SetPrevLeaf(l.p.ID())
	right.SetNextLeaf(oldNext)

	return right.MinKey()
}
