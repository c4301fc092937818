package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jrcoleman/dam/internal/engine"
)

// storeMeta is the fixed-size `dam.meta` record from spec.md §6, written
// atomically at clean shutdown and read at open to locate the three tree
// roots. Mirrors internal/engine/fileheader.go's offset-constant style.
type storeMeta struct {
	primaryRoot  engine.PageID
	nameRoot     engine.PageID
	tagRoot      engine.PageID
	nextID       uint64 // incremented by Store.Put for each new snippet
	snippetCount uint64
}

const (
	metaMagic      uint32 = 0xDAD01234
	metaRecordSize        = 4 + 4 + 4 + 4 + 8 + 8 // 32 bytes

	metaOffMagic        = 0
	metaOffPrimaryRoot  = 4
	metaOffNameRoot     = 8
	metaOffTagRoot      = 12
	metaOffNextID       = 16
	metaOffSnippetCount = 24
)

func (m *storeMeta) marshal() []byte {
	buf := make([]byte, metaRecordSize)
	binary.LittleEndian.PutUint32(buf[metaOffMagic:], metaMagic)
	binary.LittleEndian.PutUint32(buf[metaOffPrimaryRoot:], uint32(m.primaryRoot))
	binary.LittleEndian.PutUint32(buf[metaOffNameRoot:], uint32(m.nameRoot))
	binary.LittleEndian.PutUint32(buf[metaOffTagRoot:], uint32(m.tagRoot))
	binary.LittleEndian.PutUint64(buf[metaOffNextID:], m.nextID)
	binary.LittleEndian.PutUint64(buf[metaOffSnippetCount:], m.snippetCount)
	return buf
}

func unmarshalStoreMeta(buf []byte) (*storeMeta, error) {
	if len(buf) != metaRecordSize {
		return nil, fmt.Errorf("store: dam.meta has %d bytes, want %d", len(buf), metaRecordSize)
	}
	if got := binary.LittleEndian.Uint32(buf[metaOffMagic:]); got != metaMagic {
		return nil, fmt.Errorf("store: dam.meta bad magic 0x%08x", got)
	}
	return &storeMeta{
		primaryRoot:  engine.PageID(binary.LittleEndian.Uint32(buf[metaOffPrimaryRoot:])),
		nameRoot:     engine.PageID(binary.LittleEndian.Uint32(buf[metaOffNameRoot:])),
		tagRoot:      engine.PageID(binary.LittleEndian.Uint32(buf[metaOffTagRoot:])),
		nextID:       binary.LittleEndian.Uint64(buf[metaOffNextID:]),
		snippetCount: binary.LittleEndian.Uint64(buf[metaOffSnippetCount:]),
	}, nil
}

// readStoreMeta reads dam.meta from root. A missing file means a fresh
// store (spec.md §6): all roots are engine.InvalidPageID.
func readStoreMeta(path string) (*storeMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &storeMeta{
				primaryRoot: engine.InvalidPageID,
				nameRoot:    engine.InvalidPageID,
				tagRoot:     engine.InvalidPageID,
			}, nil
		}
		return nil, fmt.Errorf("store: read dam.meta: %w", err)
	}
	return unmarshalStoreMeta(data)
}

// writeStoreMeta writes dam.meta, overwriting any prior contents. The
// record is written to a temporary file and renamed over path, so a reader
// sees either the old or the new record in full.
func writeStoreMeta(path string, m *storeMeta) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, m.marshal(), 0o644); err != nil {
		return fmt.Errorf("store: write dam.meta: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: write dam.meta: %w", err)
	}
	return nil
}
