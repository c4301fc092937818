package engine

import "sync"

// frame is one buffer-pool slot: a page buffer plus its pin/dirty state.
type frame struct {
	id       PageID
	page     *Page
	dirty    bool
	pinCount int
}

// BufferPool is the in-memory page cache sitting in front of a DiskManager.
// It pins/unpins pages for callers, evicts via an LRU replacer when full,
// and writes back dirty frames on eviction or explicit flush. The buffer
// pool does not itself consult a write-ahead log — see SPEC_FULL.md §5.
type BufferPool struct {
	mu        sync.Mutex
	disk      *DiskManager
	replacer  *lruReplacer
	frames    []frame
	pageTable map[PageID]int // page id -> index into frames
	freeSlots []int          // indices not currently holding a page
}

// NewBufferPool creates a pool with capacity frames backed by disk.
func NewBufferPool(disk *DiskManager, capacity int) *BufferPool {
	pb := &BufferPool{
		disk:      disk,
		replacer:  newLRUReplacer(capacity),
		frames:    make([]frame, capacity),
		pageTable: make(map[PageID]int, capacity),
		freeSlots: make([]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		pb.freeSlots[i] = capacity - 1 - i
	}
	return pb
}

// FetchPage returns a borrowed, pinned handle to page id. The returned
// *Page is valid only until the matching UnpinPage call.
func (pb *BufferPool) FetchPage(id PageID) (*Page, error) {
	const op = "BufferPool.FetchPage"
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if idx, ok := pb.pageTable[id]; ok {
		pb.frames[idx].pinCount++
		pb.replacer.pin(id)
		return pb.frames[idx].page, nil
	}

	idx, err := pb.allocateFrameLocked()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, PageSize)
	if err := pb.disk.ReadPage(id, buf); err != nil {
		pb.freeSlots = append(pb.freeSlots, idx)
		return nil, err
	}

	pb.frames[idx] = frame{id: id, page: WrapPage(buf), pinCount: 1}
	pb.pageTable[id] = idx
	pb.replacer.pin(id)
	return pb.frames[idx].page, nil
}

// NewPage allocates a fresh page from the disk manager, installs it
// zero-initialized and pinned (pin count 1, dirty), and returns it.
func (pb *BufferPool) NewPage() (*Page, PageID, error) {
	const op = "BufferPool.NewPage"
	id, err := pb.disk.AllocatePage()
	if err != nil {
		return nil, 0, newErr(op, KindOutOfSpace, err)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	idx, err := pb.allocateFrameLocked()
	if err != nil {
		return nil, 0, err
	}

	page := NewPage(id)
	pb.frames[idx] = frame{id: id, page: page, dirty: true, pinCount: 1}
	pb.pageTable[id] = idx
	pb.replacer.pin(id)
	return page, id, nil
}

// UnpinPage decrements id's pin count, ORs in dirty, and — once the pin
// count reaches zero — makes the frame an eviction candidate.
func (pb *BufferPool) UnpinPage(id PageID, dirty bool) error {
	const op = "BufferPool.UnpinPage"
	pb.mu.Lock()
	defer pb.mu.Unlock()

	idx, ok := pb.pageTable[id]
	if !ok {
		return newErrf(op, KindInternal, "page %d not resident", id)
	}
	f := &pb.frames[idx]
	if f.pinCount <= 0 {
		return newErrf(op, KindInternal, "page %d already unpinned", id)
	}
	f.pinCount--
	if dirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		pb.replacer.unpin(id)
	}
	return nil
}

// FlushPage writes page id back to disk if dirty, recomputing its checksum
// first, then clears the dirty bit.
func (pb *BufferPool) FlushPage(id PageID) error {
	const op = "BufferPool.FlushPage"
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.flushLocked(id, op)
}

func (pb *BufferPool) flushLocked(id PageID, op string) error {
	idx, ok := pb.pageTable[id]
	if !ok {
		return newErrf(op, KindNotFound, "page %d not resident", id)
	}
	f := &pb.frames[idx]
	if !f.dirty {
		return nil
	}
	f.page.RecomputeChecksum()
	if err := pb.disk.WritePage(id, f.page.Bytes()); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// FlushAllPages flushes every dirty frame, attempting all of them even if
// one fails, and returns the first error encountered.
func (pb *BufferPool) FlushAllPages() error {
	const op = "BufferPool.FlushAllPages"
	pb.mu.Lock()
	defer pb.mu.Unlock()

	var firstErr error
	for id := range pb.pageTable {
		if err := pb.flushLocked(id, op); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeletePage removes page id from the pool and deallocates it on disk.
// Fails if the page is currently pinned.
func (pb *BufferPool) DeletePage(id PageID) error {
	const op = "BufferPool.DeletePage"
	pb.mu.Lock()
	idx, ok := pb.pageTable[id]
	if ok {
		if pb.frames[idx].pinCount > 0 {
			pb.mu.Unlock()
			return newErrf(op, KindPagePinned, "page %d is pinned", id)
		}
		pb.replacer.pin(id) // remove from eviction candidates
		delete(pb.pageTable, id)
		pb.frames[idx] = frame{}
		pb.freeSlots = append(pb.freeSlots, idx)
	}
	pb.mu.Unlock()

	return pb.disk.DeallocatePage(id)
}

// allocateFrameLocked returns a frame index ready to receive a page,
// evicting an LRU victim if no free slot exists. Caller holds pb.mu.
func (pb *BufferPool) allocateFrameLocked() (int, error) {
	if n := len(pb.freeSlots); n > 0 {
		idx := pb.freeSlots[n-1]
		pb.freeSlots = pb.freeSlots[:n-1]
		return idx, nil
	}

	victimID, ok := pb.replacer.victim()
	if !ok {
		return 0, newErrf("BufferPool", KindBufferPoolFull, "no evictable frame")
	}
	idx := pb.pageTable[victimID]
	f := &pb.frames[idx]
	if f.dirty {
		f.page.RecomputeChecksum()
		if err := pb.disk.WritePage(victimID, f.page.Bytes()); err != nil {
			pb.replacer.unpin(victimID) // restore candidacy, eviction failed
			return 0, err
		}
	}
	delete(pb.pageTable, victimID)
	return idx, nil
}
