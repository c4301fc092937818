package store

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jrcoleman/dam/internal/engine"
)

const metaFileName = "dam.meta"

// Tree tags: the snippet store's three B+Trees all log through one
// shared engine.WAL, so every LogInsert/LogDelete/LogUpdate call stamps
// its record with one of these in place of a real page id. Recover
// replays only the records tagged for the tree being recovered,
// letting three independently-recovering trees share one log.
const (
	tagPrimary engine.PageID = 1
	tagName    engine.PageID = 2
	tagTag     engine.PageID = 3
)

// Store is the snippet store: a primary B+Tree (id -> snippet record), a
// name-index B+Tree (name -> id), and a tag-index B+Tree
// (tag\x00id -> nothing), all layered over one internal/engine.Engine.
// Grounded on original_source/include/dam/snippet_store.hpp's three-index
// layout; the per-tree codec follows the teacher's row_codec.go idiom of
// a fixed binary record instead of JSON.
type Store struct {
	eng      *engine.Engine
	primary  *engine.BTree
	nameIdx  *engine.BTree
	tagIdx   *engine.BTree
	root     string
	nextID   uint64
	metaPath string
}

// Open opens or creates a store rooted at root with frameCount buffer-pool
// frames,
// replaying the WAL against each of the three trees before returning.
func Open(root string, frameCount int) (*Store, error) {
	meta, err := readStoreMeta(filepath.Join(root, metaFileName))
	if err != nil {
		return nil, err
	}

	eng, err := engine.Open(engine.Config{
		DBPath:     filepath.Join(root, "dam.db"),
		WALPath:    filepath.Join(root, "dam.wal"),
		FrameCount: frameCount,
	})
	if err != nil {
		return nil, err
	}

	primary, err := engine.NewBTree(eng.Pool(), meta.primaryRoot)
	if err != nil {
		eng.Close()
		return nil, err
	}
	nameIdx, err := engine.NewBTree(eng.Pool(), meta.nameRoot)
	if err != nil {
		eng.Close()
		return nil, err
	}
	tagIdx, err := engine.NewBTree(eng.Pool(), meta.tagRoot)
	if err != nil {
		eng.Close()
		return nil, err
	}

	if err := eng.Recover(primary, tagPrimary); err != nil {
		eng.Close()
		return nil, err
	}
	if err := eng.Recover(nameIdx, tagName); err != nil {
		eng.Close()
		return nil, err
	}
	if err := eng.Recover(tagIdx, tagTag); err != nil {
		eng.Close()
		return nil, err
	}

	return &Store{
		eng:      eng,
		primary:  primary,
		nameIdx:  nameIdx,
		tagIdx:   tagIdx,
		root:     root,
		nextID:   meta.nextID,
		metaPath: filepath.Join(root, metaFileName),
	}, nil
}

// Put inserts a new snippet (if s.ID is absent from the primary index) or
// overwrites an existing one in place. The name index is kept in sync; if
// the name-index write fails after the primary write succeeded, the
// primary entry is rolled back (spec.md §7's compensating-delete rule for
// a multi-index insert that fails partway). The whole operation is logged
// as one WAL transaction, so a crash mid-Put is either fully redone or
// fully undone on reopen.
func (s *Store) Put(snip Snippet) error {
	rec := marshalSnippet(&snip)
	wal := s.eng.WAL()

	existing, found, err := s.primary.Find(snip.ID[:])
	if err != nil {
		return err
	}

	txn, err := wal.BeginTransaction()
	if err != nil {
		return err
	}
	abort := func(cause error) error {
		wal.Abort(txn)
		return cause
	}

	var oldName string
	renaming := false
	if found {
		if oldSnip, derr := unmarshalSnippet(existing); derr == nil {
			oldName = oldSnip.Name
			renaming = oldSnip.Name != snip.Name
		}
		if renaming {
			if _, err := wal.LogDelete(txn, tagName, []byte(oldName), snip.ID[:]); err != nil {
				return abort(err)
			}
			if _, err := s.nameIdx.Remove([]byte(oldName)); err != nil {
				return abort(err)
			}
		}
		if _, err := wal.LogUpdate(txn, tagPrimary, snip.ID[:], rec, existing); err != nil {
			return abort(err)
		}
		if _, err := s.primary.Update(snip.ID[:], rec); err != nil {
			return abort(err)
		}
	} else {
		if _, err := wal.LogInsert(txn, tagPrimary, snip.ID[:], rec); err != nil {
			return abort(err)
		}
		if _, err := s.primary.Insert(snip.ID[:], rec); err != nil {
			return abort(err)
		}
		s.nextID++
	}

	if _, err := wal.LogInsert(txn, tagName, []byte(snip.Name), snip.ID[:]); err != nil {
		if !found {
			s.primary.Remove(snip.ID[:])
			s.nextID--
		}
		return abort(err)
	}
	if _, err := s.nameIdx.Insert([]byte(snip.Name), snip.ID[:]); err != nil {
		if !found {
			s.primary.Remove(snip.ID[:])
			s.nextID--
		}
		abort(nil)
		return fmt.Errorf("store: name index insert for %q failed, primary entry rolled back: %w", snip.Name, err)
	}

	return wal.Commit(txn)
}

// Get returns the snippet with the given id.
func (s *Store) Get(id uuid.UUID) (*Snippet, bool, error) {
	data, found, err := s.primary.Find(id[:])
	if err != nil || !found {
		return nil, found, err
	}
	snip, err := unmarshalSnippet(data)
	if err != nil {
		return nil, false, engine.NewError("store.Get", engine.KindCorruption, err)
	}
	return snip, true, nil
}

// GetByName finds a snippet by its unique name.
func (s *Store) GetByName(name string) (*Snippet, bool, error) {
	idBytes, found, err := s.nameIdx.Find([]byte(name))
	if err != nil || !found {
		return nil, found, err
	}
	var id uuid.UUID
	copy(id[:], idBytes)
	return s.Get(id)
}

// Delete removes a snippet and its tag-index entries, as one WAL
// transaction.
func (s *Store) Delete(id uuid.UUID) (bool, error) {
	data, found, err := s.primary.Find(id[:])
	if err != nil || !found {
		return false, err
	}
	snip, err := unmarshalSnippet(data)
	if err != nil {
		return false, engine.NewError("store.Delete", engine.KindCorruption, err)
	}

	wal := s.eng.WAL()
	txn, err := wal.BeginTransaction()
	if err != nil {
		return false, err
	}

	for _, tag := range snip.Tags {
		key := tagKey(tag, id)
		if _, err := wal.LogDelete(txn, tagTag, key, nil); err != nil {
			wal.Abort(txn)
			return false, err
		}
		if _, err := s.tagIdx.Remove(key); err != nil {
			wal.Abort(txn)
			return false, err
		}
	}
	if _, err := wal.LogDelete(txn, tagName, []byte(snip.Name), id[:]); err != nil {
		wal.Abort(txn)
		return false, err
	}
	if _, err := s.nameIdx.Remove([]byte(snip.Name)); err != nil {
		wal.Abort(txn)
		return false, err
	}
	if _, err := wal.LogDelete(txn, tagPrimary, id[:], data); err != nil {
		wal.Abort(txn)
		return false, err
	}
	removed, err := s.primary.Remove(id[:])
	if err != nil {
		wal.Abort(txn)
		return false, err
	}
	return removed, wal.Commit(txn)
}

// Tag adds tag to the snippet's tag set and the tag index.
func (s *Store) Tag(id uuid.UUID, tag string) error {
	snip, found, err := s.Get(id)
	if err != nil {
		return err
	}
	if !found {
		return engine.NewError("store.Tag", engine.KindNotFound, fmt.Errorf("snippet %s not found", id))
	}
	for _, t := range snip.Tags {
		if t == tag {
			return nil // already tagged
		}
	}

	oldRec := marshalSnippet(snip)
	snip.Tags = append(snip.Tags, tag)
	newRec := marshalSnippet(snip)

	wal := s.eng.WAL()
	txn, err := wal.BeginTransaction()
	if err != nil {
		return err
	}
	if _, err := wal.LogUpdate(txn, tagPrimary, id[:], newRec, oldRec); err != nil {
		wal.Abort(txn)
		return err
	}
	if _, err := s.primary.Update(id[:], newRec); err != nil {
		wal.Abort(txn)
		return err
	}
	key := tagKey(tag, id)
	if _, err := wal.LogInsert(txn, tagTag, key, nil); err != nil {
		wal.Abort(txn)
		return err
	}
	if _, err := s.tagIdx.Insert(key, nil); err != nil {
		wal.Abort(txn)
		return err
	}
	return wal.Commit(txn)
}

// Untag removes tag from the snippet's tag set and the tag index.
func (s *Store) Untag(id uuid.UUID, tag string) error {
	snip, found, err := s.Get(id)
	if err != nil {
		return err
	}
	if !found {
		return engine.NewError("store.Untag", engine.KindNotFound, fmt.Errorf("snippet %s not found", id))
	}
	kept := snip.Tags[:0]
	removed := false
	for _, t := range snip.Tags {
		if t == tag {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if !removed {
		return nil
	}

	oldRec := marshalSnippet(snip)
	snip.Tags = kept
	newRec := marshalSnippet(snip)

	wal := s.eng.WAL()
	txn, err := wal.BeginTransaction()
	if err != nil {
		return err
	}
	if _, err := wal.LogUpdate(txn, tagPrimary, id[:], newRec, oldRec); err != nil {
		wal.Abort(txn)
		return err
	}
	if _, err := s.primary.Update(id[:], newRec); err != nil {
		wal.Abort(txn)
		return err
	}
	key := tagKey(tag, id)
	if _, err := wal.LogDelete(txn, tagTag, key, nil); err != nil {
		wal.Abort(txn)
		return err
	}
	if _, err := s.tagIdx.Remove(key); err != nil {
		wal.Abort(txn)
		return err
	}
	return wal.Commit(txn)
}

// ByTag returns every snippet tagged with tag, via a bounded range scan
// over the tag index's tag\x00id key space.
func (s *Store) ByTag(tag string) ([]*Snippet, error) {
	lo := tagPrefix(tag)
	hi := tagPrefixUpperBound(tag)

	entries, err := s.tagIdx.Range(lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]*Snippet, 0, len(entries))
	for _, e := range entries {
		if !bytes.HasPrefix(e.Key, lo) {
			continue
		}
		var id uuid.UUID
		copy(id[:], e.Key[len(lo):])
		snip, found, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, snip)
		}
	}
	return out, nil
}

// ScanNames returns up to limit snippets whose name is >= prefix,
// stopping at the first name that no longer starts with prefix.
func (s *Store) ScanNames(prefix string, limit int) ([]*Snippet, error) {
	entries, err := s.nameIdx.Scan([]byte(prefix), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Snippet, 0, len(entries))
	for _, e := range entries {
		if !bytes.HasPrefix(e.Key, []byte(prefix)) {
			break
		}
		var id uuid.UUID
		copy(id[:], e.Value)
		snip, found, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, snip)
		}
	}
	return out, nil
}

// List returns every snippet in ascending id order.
func (s *Store) List() ([]*Snippet, error) {
	entries, err := s.primary.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Snippet, 0, len(entries))
	for _, e := range entries {
		snip, err := unmarshalSnippet(e.Value)
		if err != nil {
			return nil, engine.NewError("store.List", engine.KindCorruption, err)
		}
		out = append(out, snip)
	}
	return out, nil
}

// Count returns the number of stored snippets.
func (s *Store) Count() int {
	return s.primary.Size()
}

// Checkpoint flushes the store's pages and writes a WAL checkpoint.
func (s *Store) Checkpoint() error {
	return s.eng.Checkpoint()
}

// Engine exposes the underlying engine, for cmd/dam's inspect/stats
// subcommands.
func (s *Store) Engine() *engine.Engine {
	return s.eng
}

// Close flushes dam.meta and closes the underlying engine.
func (s *Store) Close() error {
	meta := &storeMeta{
		primaryRoot:  s.primary.Root(),
		nameRoot:     s.nameIdx.Root(),
		tagRoot:      s.tagIdx.Root(),
		nextID:       s.nextID,
		snippetCount: uint64(s.primary.Size()),
	}
	if err := writeStoreMeta(s.metaPath, meta); err != nil {
		s.eng.Close()
		return err
	}
	return s.eng.Close()
}
