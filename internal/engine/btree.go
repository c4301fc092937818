package engine

import (
	"bytes"
	"sync"
)

// BTree is an ordered key-value map backed by a BufferPool. Duplicate keys
// are disallowed. It holds no page objects itself, only a root page id and
// a running key count; every descent fetches pages from the pool and
// unpins them before moving on (no page is held pinned across its child's
// fetch).
type BTree struct {
	mu   sync.Mutex
	pool *BufferPool
	root PageID
	size int
}

// maxLeafPayload is the largest key+value combination that can ever fit
// on a single (otherwise empty) leaf page. There is no overflow-page
// mechanism in this engine — see SPEC_FULL.md §3 — so larger entries are
// rejected outright rather than chained across pages.
const maxLeafPayload = DataSize - leafSubHeaderSize - leafSlotSize

// NewBTree opens a tree rooted at root. If root is InvalidPageID, a fresh
// empty leaf is allocated and becomes the root (bootstrap).
func NewBTree(pool *BufferPool, root PageID) (*BTree, error) {
	t := &BTree{pool: pool}
	if root == InvalidPageID {
		page, id, err := pool.NewPage()
		if err != nil {
			return nil, err
		}
		InitLeaf(page)
		if err := pool.UnpinPage(id, true); err != nil {
			return nil, err
		}
		t.root = id
		return t, nil
	}
	t.root = root
	n, err := t.countAll()
	if err != nil {
		return nil, err
	}
	t.size = n
	return t, nil
}

// Root returns the current root page id.
func (t *BTree) Root() PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Size returns the number of keys currently in the tree.
func (t *BTree) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *BTree) validateEntry(op string, key, value []byte) error {
	if len(key) == 0 {
		return newErrf(op, KindInvalidArgument, "key must not be empty")
	}
	if len(key)+len(value) > maxLeafPayload {
		return newErrf(op, KindInvalidArgument, "key+value of %d bytes exceeds the %d-byte single-page limit", len(key)+len(value), maxLeafPayload)
	}
	return nil
}

// descendToLeaf returns the id of the leaf that would contain key.
func (t *BTree) descendToLeaf(key []byte) (PageID, error) {
	pid := t.root
	for {
		page, err := t.pool.FetchPage(pid)
		if err != nil {
			return 0, err
		}
		if page.NodeKind() == NodeLeaf {
			if err := t.pool.UnpinPage(pid, false); err != nil {
				return 0, err
			}
			return pid, nil
		}
		ip := WrapInternal(page)
		child := ip.FindChild(key)
		if err := t.pool.UnpinPage(pid, false); err != nil {
			return 0, err
		}
		pid = child
	}
}

// leftmostLeaf returns the id of the leaf at the start of the sibling
// chain.
func (t *BTree) leftmostLeaf() (PageID, error) {
	pid := t.root
	for {
		page, err := t.pool.FetchPage(pid)
		if err != nil {
			return 0, err
		}
		if page.NodeKind() == NodeLeaf {
			if err := t.pool.UnpinPage(pid, false); err != nil {
				return 0, err
			}
			return pid, nil
		}
		ip := WrapInternal(page)
		child := ip.FirstChild()
		if err := t.pool.UnpinPage(pid, false); err != nil {
			return 0, err
		}
		pid = child
	}
}

func (t *BTree) setParent(childID, parentID PageID) error {
	page, err := t.pool.FetchPage(childID)
	if err != nil {
		return err
	}
	page.SetParentPageID(parentID)
	return t.pool.UnpinPage(childID, true)
}

// Find returns the value stored for key, if present.
func (t *BTree) Find(key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(key)
}

func (t *BTree) findLocked(key []byte) ([]byte, bool, error) {
	leafID, err := t.descendToLeaf(key)
	if err != nil {
		return nil, false, err
	}
	page, err := t.pool.FetchPage(leafID)
	if err != nil {
		return nil, false, err
	}
	lp := WrapLeaf(page)
	idx, found := lp.Find(key)
	var val []byte
	if found {
		val = lp.Value(idx)
	}
	if err := t.pool.UnpinPage(leafID, false); err != nil {
		return nil, false, err
	}
	return val, found, nil
}

// Contains reports whether key is present.
func (t *BTree) Contains(key []byte) (bool, error) {
	_, found, err := t.Find(key)
	return found, err
}

// Insert adds key/value. Returns false iff key is already present.
func (t *BTree) Insert(key, value []byte) (bool, error) {
	const op = "BTree.Insert"
	if err := t.validateEntry(op, key, value); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(key, value)
}

func (t *BTree) insertLocked(key, value []byte) (bool, error) {
	leafID, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	page, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	lp := WrapLeaf(page)

	if _, found := lp.Find(key); found {
		t.pool.UnpinPage(leafID, false)
		return false, nil
	}

	if lp.HasSpace(len(key), len(value)) {
		lp.Insert(key, value)
		if err := t.pool.UnpinPage(leafID, true); err != nil {
			return false, err
		}
		t.size++
		return true, nil
	}

	rightPage, rightID, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(leafID, false)
		return false, err
	}
	rightPage.SetParentPageID(page.ParentPageID())
	rp := InitLeaf(rightPage)

	oldNextID := lp.NextLeaf()
	promotedKey := Split(lp, rp, Entry{Key: key, Value: value})

	if err := t.pool.UnpinPage(leafID, true); err != nil {
		return false, err
	}
	if err := t.pool.UnpinPage(rightID, true); err != nil {
		return false, err
	}

	if oldNextID != InvalidPageID {
		nxPage, err := t.pool.FetchPage(oldNextID)
		if err != nil {
			return false, err
		}
		WrapLeaf(nxPage).SetPrevLeaf(rightID)
		if err := t.pool.UnpinPage(oldNextID, true); err != nil {
			return false, err
		}
	}

	t.size++
	if err := t.insertIntoParent(leafID, promotedKey, rightID); err != nil {
		return false, err
	}
	return true, nil
}

// insertIntoParent installs the (promotedKey, rightID) separator into
// leftID's parent, splitting and recursing upward as needed, or creating
// a fresh root if leftID had none.
func (t *BTree) insertIntoParent(leftID PageID, promotedKey []byte, rightID PageID) error {
	leftPage, err := t.pool.FetchPage(leftID)
	if err != nil {
		return err
	}
	parentID := leftPage.ParentPageID()
	if err := t.pool.UnpinPage(leftID, false); err != nil {
		return err
	}

	if parentID == InvalidPageID {
		newRootPage, newRootID, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		ip := InitInternal(newRootPage, leftID)
		ip.Insert(promotedKey, rightID)
		if err := t.pool.UnpinPage(newRootID, true); err != nil {
			return err
		}
		if err := t.setParent(leftID, newRootID); err != nil {
			return err
		}
		if err := t.setParent(rightID, newRootID); err != nil {
			return err
		}
		t.root = newRootID
		return nil
	}

	if err := t.setParent(rightID, parentID); err != nil {
		return err
	}

	parentPage, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	ip := WrapInternal(parentPage)

	if ip.HasSpace(len(promotedKey)) {
		ip.Insert(promotedKey, rightID)
		return t.pool.UnpinPage(parentID, true)
	}

	newInternalPage, newInternalID, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(parentID, false)
		return err
	}
	newInternalPage.SetParentPageID(parentPage.ParentPageID())
	promoted, moved := SplitInternal(ip, newInternalPage, internalEntry{Key: promotedKey, Child: rightID})

	if err := t.pool.UnpinPage(parentID, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(newInternalID, true); err != nil {
		return err
	}

	for _, childID := range moved {
		if err := t.setParent(childID, newInternalID); err != nil {
			return err
		}
	}

	return t.insertIntoParent(parentID, promoted, newInternalID)
}

// Remove deletes key. Returns true iff it was present. No merge,
// redistribution, or shrinking happens on underflow — a deliberate
// simplification (spec.md §4.5).
func (t *BTree) Remove(key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(key)
}

func (t *BTree) removeLocked(key []byte) (bool, error) {
	leafID, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	page, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	lp := WrapLeaf(page)
	idx, found := lp.Find(key)
	if !found {
		t.pool.UnpinPage(leafID, false)
		return false, nil
	}
	lp.Remove(idx)
	if err := t.pool.UnpinPage(leafID, true); err != nil {
		return false, err
	}
	t.size--
	return true, nil
}

// Update rewrites key's value. Returns false if key is absent. If the new
// value does not fit in place, falls back to remove+insert at the tree
// level, which may cascade into a split.
func (t *BTree) Update(key, value []byte) (bool, error) {
	const op = "BTree.Update"
	if err := t.validateEntry(op, key, value); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	leafID, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	page, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	lp := WrapLeaf(page)
	idx, found := lp.Find(key)
	if !found {
		t.pool.UnpinPage(leafID, false)
		return false, nil
	}
	if lp.UpdateInPlace(idx, value) {
		if err := t.pool.UnpinPage(leafID, true); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := t.pool.UnpinPage(leafID, false); err != nil {
		return false, err
	}

	if ok, err := t.removeLocked(key); err != nil || !ok {
		return false, err
	}
	return t.insertLocked(key, value)
}

// Range returns every entry with key in [lo, hi], inclusive on both ends,
// in ascending order.
func (t *BTree) Range(lo, hi []byte) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	leafID, err := t.descendToLeaf(lo)
	if err != nil {
		return nil, err
	}
	for leafID != InvalidPageID {
		page, err := t.pool.FetchPage(leafID)
		if err != nil {
			return nil, err
		}
		lp := WrapLeaf(page)
		all := lp.GetAll()
		nextID := lp.NextLeaf()
		if err := t.pool.UnpinPage(leafID, false); err != nil {
			return nil, err
		}

		stop := false
		for _, e := range all {
			if bytes.Compare(e.Key, lo) < 0 {
				continue
			}
			if bytes.Compare(e.Key, hi) > 0 {
				stop = true
				break
			}
			out = append(out, e)
		}
		if stop {
			break
		}
		leafID = nextID
	}
	return out, nil
}

// Scan returns up to limit entries starting at the first key >= from.
func (t *BTree) Scan(from []byte, limit int) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	leafID, err := t.descendToLeaf(from)
	if err != nil {
		return nil, err
	}
	for leafID != InvalidPageID && len(out) < limit {
		page, err := t.pool.FetchPage(leafID)
		if err != nil {
			return nil, err
		}
		lp := WrapLeaf(page)
		all := lp.GetAll()
		nextID := lp.NextLeaf()
		if err := t.pool.UnpinPage(leafID, false); err != nil {
			return nil, err
		}

		for _, e := range all {
			if bytes.Compare(e.Key, from) < 0 {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
		leafID = nextID
	}
	return out, nil
}

// GetAll returns every entry in ascending key order.
func (t *BTree) GetAll() ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getAllLocked()
}

func (t *BTree) getAllLocked() ([]Entry, error) {
	var out []Entry
	err := t.forEachLocked(func(key, value []byte) bool {
		out = append(out, Entry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
		return true
	})
	return out, err
}

func (t *BTree) countAll() (int, error) {
	n := 0
	err := t.forEachLocked(func(key, value []byte) bool {
		n++
		return true
	})
	return n, err
}

// ForEach walks every entry in ascending key order, stopping early if fn
// returns false.
func (t *BTree) ForEach(fn func(key, value []byte) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forEachLocked(fn)
}

func (t *BTree) forEachLocked(fn func(key, value []byte) bool) error {
	leafID, err := t.leftmostLeaf()
	if err != nil {
		return err
	}
	for leafID != InvalidPageID {
		page, err := t.pool.FetchPage(leafID)
		if err != nil {
			return err
		}
		lp := WrapLeaf(page)
		all := lp.GetAll()
		nextID := lp.NextLeaf()
		if err := t.pool.UnpinPage(leafID, false); err != nil {
			return err
		}
		for _, e := range all {
			if !fn(e.Key, e.Value) {
				return nil
			}
		}
		leafID = nextID
	}
	return nil
}

// Height returns the number of levels from root to leaf, inclusive.
func (t *BTree) Height() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := 1
	pid := t.root
	for {
		page, err := t.pool.FetchPage(pid)
		if err != nil {
			return 0, err
		}
		if page.NodeKind() == NodeLeaf {
			t.pool.UnpinPage(pid, false)
			return h, nil
		}
		ip := WrapInternal(page)
		child := ip.FirstChild()
		t.pool.UnpinPage(pid, false)
		pid = child
		h++
	}
}

// Verify checks that the leaf chain is globally sorted and that the
// tracked size matches the number of entries actually reachable.
func (t *BTree) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	leafID, err := t.leftmostLeaf()
	if err != nil {
		return err
	}
	var prev []byte
	first := true
	count := 0
	for leafID != InvalidPageID {
		page, err := t.pool.FetchPage(leafID)
		if err != nil {
			return err
		}
		lp := WrapLeaf(page)
		all := lp.GetAll()
		nextID := lp.NextLeaf()
		if err := t.pool.UnpinPage(leafID, false); err != nil {
			return err
		}
		for _, e := range all {
			if !first && bytes.Compare(e.Key, prev) <= 0 {
				return newErrf("BTree.Verify", KindInternal, "keys out of order at %q", e.Key)
			}
			prev, first = e.Key, false
			count++
		}
		leafID = nextID
	}
	if count != t.size {
		return newErrf("BTree.Verify", KindInternal, "size mismatch: tracked=%d actual=%d", t.size, count)
	}
	return nil
}
