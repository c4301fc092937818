package engine

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Internal page data-region layout (relative offsets within Page.Data()):
//
//	[0:4)   firstChild PageID
//	[4:6)   freeSpaceOffset uint16
//	[6:8)   dataOffset      uint16
//	[8:..)  slot array: 8 bytes each {rightChild PageID, keyOffset u16, keyLen u16}
//
// Slot i's key separates firstChild/earlier children (< key[0]) from
// rightChild (>= key[i]); slots are kept in ascending key order.
const (
	intSubHeaderSize = 8
	intSlotSize      = 8

	intOffFirstChild = 0
	intOffFreeSpace  = 4
	intOffDataOff    = 6
	intOffSlots      = 8
)

// InternalPage is a view over a Page initialized as a B+Tree internal node.
type InternalPage struct {
	p *Page
}

// InitInternal resets p into an empty internal page with the given first
// child.
func InitInternal(p *Page, firstChild PageID) InternalPage {
	p.SetNodeKind(NodeInternal)
	p.SetNumKeys(0)
	d := p.Data()
	binary.LittleEndian.PutUint32(d[intOffFirstChild:], uint32(firstChild))
	binary.LittleEndian.PutUint16(d[intOffFreeSpace:], intOffSlots)
	binary.LittleEndian.PutUint16(d[intOffDataOff:], DataSize)
	return InternalPage{p: p}
}

// WrapInternal views an already-initialized internal page.
func WrapInternal(p *Page) InternalPage { return InternalPage{p: p} }

func (n InternalPage) FirstChild() PageID {
	return PageID(binary.LittleEndian.Uint32(n.p.Data()[intOffFirstChild:]))
}
func (n InternalPage) SetFirstChild(id PageID) {
	binary.LittleEndian.PutUint32(n.p.Data()[intOffFirstChild:], uint32(id))
}

func (n InternalPage) freeSpaceOffset() int {
	return int(binary.LittleEndian.Uint16(n.p.Data()[intOffFreeSpace:]))
}
func (n InternalPage) setFreeSpaceOffset(v int) {
	binary.LittleEndian.PutUint16(n.p.Data()[intOffFreeSpace:], uint16(v))
}
func (n InternalPage) dataOffset() int {
	return int(binary.LittleEndian.Uint16(n.p.Data()[intOffDataOff:]))
}
func (n InternalPage) setDataOffset(v int) {
	binary.LittleEndian.PutUint16(n.p.Data()[intOffDataOff:], uint16(v))
}

func (n InternalPage) KeyCount() int { return int(n.p.NumKeys()) }

func (n InternalPage) FreeSpace() int { return n.dataOffset() - n.freeSpaceOffset() }

func (n InternalPage) slotAt(i int) (child PageID, keyOff, keyLen int) {
	off := intOffSlots + i*intSlotSize
	d := n.p.Data()
	child = PageID(binary.LittleEndian.Uint32(d[off:]))
	keyOff = int(binary.LittleEndian.Uint16(d[off+4:]))
	keyLen = int(binary.LittleEndian.Uint16(d[off+6:]))
	return
}

func (n InternalPage) setSlotAt(i int, child PageID, keyOff, keyLen int) {
	off := intOffSlots + i*intSlotSize
	d := n.p.Data()
	binary.LittleEndian.PutUint32(d[off:], uint32(child))
	binary.LittleEndian.PutUint16(d[off+4:], uint16(keyOff))
	binary.LittleEndian.PutUint16(d[off+6:], uint16(keyLen))
}

// Key returns the separator key at slot i.
func (n InternalPage) Key(i int) []byte {
	_, off, klen := n.slotAt(i)
	return append([]byte(nil), n.p.Data()[off:off+klen]...)
}

// Child returns the right-child id of slot i.
func (n InternalPage) Child(i int) PageID {
	child, _, _ := n.slotAt(i)
	return child
}

// FindChild returns first_child if key < Key(0); otherwise the right
// child of the largest separator <= key.
func (n InternalPage) FindChild(key []byte) PageID {
	m := n.KeyCount()
	if m == 0 {
		return n.FirstChild()
	}
	// idx = first slot whose key > target key.
	idx := sort.Search(m, func(i int) bool {
		return bytes.Compare(n.Key(i), key) > 0
	})
	if idx == 0 {
		return n.FirstChild()
	}
	return n.Child(idx - 1)
}

// HasSpace reports whether a new separator key of length klen fits.
func (n InternalPage) HasSpace(klen int) bool {
	return intSlotSize+klen <= n.FreeSpace()
}

// Insert adds a (key, rightChild) separator in sorted position. Returns
// false if there is insufficient space.
func (n InternalPage) Insert(key []byte, rightChild PageID) bool {
	if !n.HasSpace(len(key)) {
		return false
	}
	m := n.KeyCount()
	idx := sort.Search(m, func(i int) bool {
		return bytes.Compare(n.Key(i), key) >= 0
	})

	newDataOff := n.dataOffset() - len(key)
	copy(n.p.Data()[newDataOff:], key)
	n.setDataOffset(newDataOff)

	for i := m; i > idx; i-- {
		child, off, klen := n.slotAt(i - 1)
		n.setSlotAt(i, child, off, klen)
	}
	n.setSlotAt(idx, rightChild, newDataOff, len(key))
	n.setFreeSpaceOffset(n.freeSpaceOffset() + intSlotSize)
	n.p.SetNumKeys(uint16(m + 1))
	return true
}

// internalEntry materializes one (key, rightChild) separator.
type internalEntry struct {
	Key   []byte
	Child PageID
}

// allEntries returns every separator in ascending key order.
func (n InternalPage) allEntries() []internalEntry {
	m := n.KeyCount()
	out := make([]internalEntry, m)
	for i := 0; i < m; i++ {
		out[i] = internalEntry{Key: n.Key(i), Child: n.Child(i)}
	}
	return out
}

// SplitInternal redistributes every current separator in n plus pending
// (the insert that triggered the split) between n (left) and right (a
// freshly initialized internal page). The middle entry's key is promoted
// to the parent WITHOUT being copied into either side; its child becomes
// right's first_child. Returns the promoted key and the ids of every
// child that moved to right, which the caller must reparent.
func SplitInternal(n InternalPage, right *Page, pending internalEntry) (promotedKey []byte, movedChildren []PageID) {
	all := append(n.allEntries(), pending)
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i].Key, all[j].Key) < 0 })
	first := n.FirstChild()
	mid := len(all) / 2

	leftID := n.p.ID()
	leftParent := n.p.ParentPageID()
	n.p.Reset(leftID)
	n.p.SetParentPageID(leftParent)
	InitInternal(n.p, first)
	for _, e := range all[:mid] {
		n.Insert(e.Key, e.Child)
	}

	promoted := all[mid]

	rightID := right.ID()
	rightParent := right.ParentPageID()
	right.Reset(rightID)
	right.SetParentPageID(rightParent)
	rp := InitInternal(right, promoted.Child)
	for _, e := range all[mid+1:] {
		rp.Insert(e.Key, e.Child)
	}

	moved := []PageID{promoted.Child}
	for _, e := range all[mid+1:] {
		moved = append(moved, e.Child)
	}
	return promoted.Key, moved
}
