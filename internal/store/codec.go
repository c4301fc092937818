package store

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// marshalSnippet and unmarshalSnippet are the compact binary record codec
// for a Snippet, grounded on the teacher's row_codec.go (which encodes a
// []any SQL row as a tag-count header plus per-field tagged payloads, in
// place of JSON). Here the "columns" are Snippet's named fields instead
// of arbitrary row cells, so the format is fixed rather than tagged:
//
//	[0:16]   ID (raw uuid bytes)
//	[16:18]  name length (u16 LE) + name bytes
//	[..:2]   language length (u16 LE) + language bytes
//	[..:4]   content length (u32 LE) + content bytes
//	[..:2]   tag count (u16 LE)
//	  per tag: length (u16 LE) + tag bytes
//	[..:8]   created_at (i64 LE)
//	[..:8]   updated_at (i64 LE)
func marshalSnippet(s *Snippet) []byte {
	size := 16 + 2 + len(s.Name) + 2 + len(s.Language) + 4 + len(s.Content) + 2
	for _, t := range s.Tags {
		size += 2 + len(t)
	}
	size += 8 + 8

	buf := make([]byte, size)
	off := 0
	copy(buf[off:], s.ID[:])
	off += 16

	off = putString16(buf, off, s.Name)
	off = putString16(buf, off, s.Language)
	off = putBytes32(buf, off, s.Content)

	binary.LittleEndian.PutUint16(buf[off:], uint16(len(s.Tags)))
	off += 2
	for _, t := range s.Tags {
		off = putString16(buf, off, t)
	}

	binary.LittleEndian.PutUint64(buf[off:], uint64(s.CreatedAt))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(s.UpdatedAt))
	off += 8
	return buf
}

func unmarshalSnippet(data []byte) (*Snippet, error) {
	if len(data) < 16+2+2+4+2+8+8 {
		return nil, fmt.Errorf("store: snippet record too short")
	}
	s := &Snippet{}
	off := 0
	copy(s.ID[:], data[off:off+16])
	off += 16

	var err error
	s.Name, off, err = getString16(data, off)
	if err != nil {
		return nil, err
	}
	s.Language, off, err = getString16(data, off)
	if err != nil {
		return nil, err
	}
	var content []byte
	content, off, err = getBytes32(data, off)
	if err != nil {
		return nil, err
	}
	s.Content = content

	if off+2 > len(data) {
		return nil, fmt.Errorf("store: truncated tag count")
	}
	tagCount := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	s.Tags = make([]string, tagCount)
	for i := 0; i < tagCount; i++ {
		s.Tags[i], off, err = getString16(data, off)
		if err != nil {
			return nil, err
		}
	}

	if off+16 > len(data) {
		return nil, fmt.Errorf("store: truncated timestamps")
	}
	s.CreatedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	s.UpdatedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	return s, nil
}

func putString16(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(s)))
	off += 2
	off += copy(buf[off:], s)
	return off
}

func getString16(data []byte, off int) (string, int, error) {
	if off+2 > len(data) {
		return "", off, fmt.Errorf("store: truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	if off+n > len(data) {
		return "", off, fmt.Errorf("store: truncated string data")
	}
	s := string(data[off : off+n])
	off += n
	return s, off, nil
}

func putBytes32(buf []byte, off int, b []byte) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(b)))
	off += 4
	off += copy(buf[off:], b)
	return off
}

func getBytes32(data []byte, off int) ([]byte, int, error) {
	if off+4 > len(data) {
		return nil, off, fmt.Errorf("store: truncated bytes length")
	}
	n := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+n > len(data) {
		return nil, off, fmt.Errorf("store: truncated bytes data")
	}
	b := append([]byte(nil), data[off:off+n]...)
	off += n
	return b, off, nil
}

// tagKey builds the composite key "tag\x00id" used by the tag index,
// grounded on the teacher's catalogKey(tenant, table) pattern in
// catalog.go.
func tagKey(tag string, id uuid.UUID) []byte {
	key := make([]byte, 0, len(tag)+1+16)
	key = append(key, tag...)
	key = append(key, 0x00)
	key = append(key, id[:]...)
	return key
}

// tagPrefix is the range-scan lower bound for every key belonging to tag.
func tagPrefix(tag string) []byte {
	key := make([]byte, 0, len(tag)+1)
	key = append(key, tag...)
	key = append(key, 0x00)
	return key
}

// tagPrefixUpperBound is an exclusive upper bound one byte past every key
// with this tag's prefix (0x01 sorts immediately after the 0x00
// separator and before any id byte that could follow it).
func tagPrefixUpperBound(tag string) []byte {
	key := make([]byte, 0, len(tag)+1)
	key = append(key, tag...)
	key = append(key, 0x01)
	return key
}
